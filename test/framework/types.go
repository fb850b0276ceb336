// Package framework is the black-box test harness for this runtime: it
// starts one or more MicroServices in-process and dials them with
// pkg/rpc.Client, the retargeting of test/framework/{cluster,client,
// process}.go's VM-cluster bootstrap away from spinning up Lima VMs or
// Docker containers running a full orchestrator, onto spinning up the
// MicroServices this runtime actually serves.
package framework

// TestingT is the subset of *testing.T the framework needs, kept
// identical to the teacher's own minimal interface so a fake can stand in
// for unit-testing the framework itself.
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}
