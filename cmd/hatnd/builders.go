package main

import (
	"context"
	"time"

	"github.com/hatn-go/hatn/pkg/configtree"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/hatn-go/hatn/pkg/jobsched"
	"github.com/hatn-go/hatn/pkg/mq"
	"github.com/hatn-go/hatn/pkg/rpc"
)

// addrOf reads the mandatory "addr" field off a microservices config entry.
func addrOf(node *configtree.Tree) (string, error) {
	v, err := node.Get("addr")
	if err != nil {
		return "", herr.New(herr.Base, herr.ErrRequiredConfigField, "microservice entry missing addr")
	}
	return v.Str, nil
}

// echoBuilder serves a single "echo" method that uppercases its input,
// grounded on pkg/rpc's own test echo service; useful as a liveness probe
// target. The outbox delivers to it only when mq.deliver_to names it.
func echoBuilder(name string, node *configtree.Tree, ds *rpc.DispatchersStore) (*rpc.MicroService, error) {
	addr, err := addrOf(node)
	if err != nil {
		return nil, err
	}

	svc := rpc.NewServerService(name)
	svc.AddMethod(&rpc.Method{
		Name: "Upper",
		Handler: func(_ context.Context, rc *rpc.RequestContext) ([]byte, error) {
			out := make([]byte, len(rc.Message))
			for i, b := range rc.Message {
				if b >= 'a' && b <= 'z' {
					b -= 'a' - 'A'
				}
				out[i] = b
			}
			return out, nil
		},
	})

	router := rpc.NewServiceRouter()
	router.Register(svc)
	dispatcher := &rpc.ServiceDispatcher{Name: name, Router: router}
	ds.RegisterDispatcher(dispatcher)
	return rpc.NewMicroService(name, addr, dispatcher, nil, nil), nil
}

// jobschedBuilder exposes a Scheduler's PostJob over RPC: a "Post" method
// takes the request topic and body as the job's topic and content, with a
// ref id new per call (so every Post succeeds without a conflict check)
// and an immediate NextTime so the job runs on the next dispatch cycle.
func jobschedBuilder(sched *jobsched.Scheduler) rpc.Builder {
	return func(name string, node *configtree.Tree, ds *rpc.DispatchersStore) (*rpc.MicroService, error) {
		addr, err := addrOf(node)
		if err != nil {
			return nil, err
		}

		svc := rpc.NewServerService(name)
		svc.AddMethod(&rpc.Method{
			Name: "Post",
			Handler: func(ctx context.Context, rc *rpc.RequestContext) ([]byte, error) {
				topic := rc.Topic
				if topic == "" {
					topic = "default"
				}
				job := &jobsched.Job{
					ObjectID: value.NewObjectID(),
					RefID:    value.NewObjectID().String(),
					RefType:  "hatnd.job",
					NextTime: time.Now(),
					Topic:    topic,
					Content:  rc.Message,
				}
				if err := sched.PostJob(ctx, job, jobsched.Queued, jobsched.SkipNewJob); err != nil {
					return nil, err
				}
				return []byte(job.RefID), nil
			},
		})

		router := rpc.NewServiceRouter()
		router.Register(svc)
		dispatcher := &rpc.ServiceDispatcher{Name: name, Router: router}
		ds.RegisterDispatcher(dispatcher)
		return rpc.NewMicroService(name, addr, dispatcher, nil, nil), nil
	}
}

// mqBuilder exposes a Producer's outbox over RPC: a "Post" method posts a
// create message keyed by the request topic, with the request body as the
// message content and no notification payload.
func mqBuilder(producer *mq.Producer) rpc.Builder {
	return func(name string, node *configtree.Tree, ds *rpc.DispatchersStore) (*rpc.MicroService, error) {
		addr, err := addrOf(node)
		if err != nil {
			return nil, err
		}

		svc := rpc.NewServerService(name)
		svc.AddMethod(&rpc.Method{
			Name: "Post",
			Handler: func(_ context.Context, rc *rpc.RequestContext) ([]byte, error) {
				topic := rc.Topic
				if topic == "" {
					topic = "default"
				}
				targetObjectID := value.NewObjectID().String()
				if err := producer.Post(topic, mq.OpCreate, targetObjectID, "hatnd.message", rc.Message, nil, value.Null()); err != nil {
					return nil, err
				}
				return []byte(targetObjectID), nil
			},
		})

		router := rpc.NewServiceRouter()
		router.Register(svc)
		dispatcher := &rpc.ServiceDispatcher{Name: name, Router: router}
		ds.RegisterDispatcher(dispatcher)
		return rpc.NewMicroService(name, addr, dispatcher, nil, nil), nil
	}
}
