// Command hatnd hosts a set of microservices described by a JSONC config
// file: it wires together the store, cipher suite, scheduler and outbox
// components and serves them over the RPC framework, mirroring
// cmd/warren/main.go's cobra root command without reimplementing a
// general-purpose option parser.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hatn-go/hatn/pkg/configtree"
	"github.com/hatn-go/hatn/pkg/crypt"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/db"
	"github.com/hatn-go/hatn/pkg/jobsched"
	"github.com/hatn-go/hatn/pkg/logctx"
	"github.com/hatn-go/hatn/pkg/metrics"
	"github.com/hatn-go/hatn/pkg/mq"
	"github.com/hatn-go/hatn/pkg/rpc"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hatnd",
	Short: "hatnd hosts the core runtime's microservices",
	Long: `hatnd reads a JSONC configuration file describing a set of
microservices, the indexed store that backs them, and the cipher suite
protecting their data at rest, then serves them until interrupted.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hatnd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, critical, none)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	logctx.Init(logctx.Config{
		Level:      parseLevel(logLevel),
		JSONOutput: logJSON,
	})
}

func parseLevel(s string) logctx.Level {
	switch s {
	case "trace":
		return logctx.Trace
	case "debug":
		return logctx.Debug
	case "warn":
		return logctx.Warn
	case "error":
		return logctx.Error
	case "critical":
		return logctx.Critical
	case "none":
		return logctx.None
	default:
		return logctx.Info
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the configured microservices and block until interrupted",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "path to the JSONC config file (required)")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for the /metrics, /health, /ready and /live endpoints")
	serveCmd.MarkFlagRequired("config")
}

// runServe is the whole lifecycle: parse config, open the store, register
// the cipher suite, build every configured microservice, start the
// scheduler and outbox if configured, serve the metrics/health endpoint,
// then block for SIGINT/SIGTERM and shut everything down in reverse order.
func runServe(cmd *cobra.Command, args []string) error {
	ctx := logctx.Main()

	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	tree, err := configtree.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	dataDir := tree.GetDefault("app.data_dir", value.String("./data")).Str
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	store, err := db.Open(dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	suiteID := tree.GetDefault("crypt.suite_id", value.String("default")).Str
	masterKeyHex := tree.GetDefault("crypt.master_key", value.String("")).Str
	masterKey := []byte(masterKeyHex)
	if len(masterKey) == 0 {
		masterKey = make([]byte, 32)
	}
	suite, err := crypt.RegisterStdlibDefaults("stdlib", suiteID, masterKey)
	if err != nil {
		return fmt.Errorf("registering cipher suite: %w", err)
	}
	logctx.Log(logctx.Info, ctx, "cipher suite registered", []logctx.Record{
		logctx.R("suite_id", value.String(suite.ID)),
	}, "hatnd")

	metrics.RegisterComponent("db", true, "open")
	metrics.RegisterComponent("rpc", false, "starting")
	metrics.RegisterComponent("api", true, "ready")
	metrics.SetVersion(Version)

	ds := rpc.NewDispatchersStore()
	factory := rpc.NewMicroServiceFactory()

	jobTopic := tree.GetDefault("jobsched.default_topic", value.String("default")).Str
	schedCfg := jobsched.DefaultConfig()
	schedCfg.DefaultTopic = jobTopic
	sched := jobsched.New(store, schedCfg, invokeJob(ctx), ctx)

	producerID := tree.GetDefault("mq.producer_id", value.String("hatnd")).Str
	producer := mq.NewProducer(store, producerID)
	notifier := mq.NewNotifier()

	factory.RegisterBuilder("echo", echoBuilder)
	factory.RegisterBuilder("jobsched", jobschedBuilder(sched))
	factory.RegisterBuilder("mq", mqBuilder(producer))

	services, err := factory.CreateAll(tree, ds)
	if err != nil {
		return fmt.Errorf("building microservices: %w", err)
	}

	errCh := make(chan error, len(services))
	for _, ms := range services {
		ms := ms
		go func() {
			if err := ms.Serve(); err != nil {
				errCh <- fmt.Errorf("microservice %s: %w", ms.Name, err)
			}
		}()
	}

	sched.Start()
	notifier.Start()

	var deliverer *mq.Deliverer
	if deliverTo := tree.GetDefault("mq.deliver_to", value.String("")).Str; deliverTo != "" {
		deliverService := tree.GetDefault("mq.deliver_service", value.String("")).Str
		deliverMethod := tree.GetDefault("mq.deliver_method", value.String("")).Str
		client := rpc.NewClient(nil)
		router := rpc.NewRouter(rpc.RouterNone, []string{deliverTo}, nil)
		session := rpc.NewSession(client, router, nil)
		sc := session.Service(deliverService)
		deliverer = mq.NewDeliverer(producer, sc, deliverMethod, mq.DefaultDeliveryConfig(), ctx, notifier)
		deliverer.Start(jobTopic)
		defer client.Close()
	}

	metrics.RegisterComponent("rpc", true, "serving")

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	fmt.Printf("hatnd serving %d microservice(s), metrics on http://%s/metrics\n", len(services), metricsAddr)
	fmt.Println("Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
	}

	if deliverer != nil {
		deliverer.Stop()
	}
	notifier.Stop()
	sched.Stop()
	for _, ms := range services {
		ms.Stop()
	}
	metricsSrv.Shutdown(context.Background())

	fmt.Println("shutdown complete")
	return nil
}

// invokeJob logs every due job instead of running a real side effect;
// hatnd itself has no domain-specific job handlers, only the framework to
// run them.
func invokeJob(ctx *logctx.Context) jobsched.InvokeFunc {
	return func(_ context.Context, job *jobsched.Job) error {
		logctx.Log(logctx.Info, ctx, "job dispatched", []logctx.Record{
			logctx.R("ref_id", value.String(job.RefID)),
			logctx.R("ref_type", value.String(job.RefType)),
			logctx.R("topic", value.String(job.Topic)),
		}, "jobsched")
		return nil
	}
}
