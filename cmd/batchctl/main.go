package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/fetchkit/batch"
	"github.com/nomis52/fetchkit/buildinfo"
	"github.com/nomis52/fetchkit/config"
	"github.com/nomis52/fetchkit/dispatch"
	"github.com/nomis52/fetchkit/logging"
	"github.com/nomis52/fetchkit/metrics"
	"github.com/nomis52/fetchkit/registry"
	"github.com/nomis52/fetchkit/schedule"
	"github.com/nomis52/fetchkit/transport"
)

type Args struct {
	ConfigPath     string
	OperationsPath string
	BatchPath      string
	Validate       bool
	Version        bool
	Stream         bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.Version {
		fmt.Println(buildinfo.Get())
		return nil
	}

	if args.BatchPath == "" {
		return fmt.Errorf("batch flag (-b or --batch) is required")
	}

	cfg := config.Config{}
	if args.ConfigPath != "" {
		loaded, err := config.LoadConfig(args.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg.SetDefaults()
	}
	if args.OperationsPath != "" {
		cfg.Operations = args.OperationsPath
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	items, err := loadItems(args.BatchPath, builtinHandlers())
	if err != nil {
		return fmt.Errorf("failed to load batch file: %w", err)
	}

	runner, err := buildRunner(cfg, logger)
	if err != nil {
		return err
	}

	if args.Validate {
		if err := runner.Validate(items); err != nil {
			return err
		}
		logger.Info("batch file valid", "items", len(items))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	execute := func() error {
		return runBatch(ctx, runner, items, cfg, logger, args.Stream)
	}

	if cfg.Schedule == "" {
		return execute()
	}

	trigger, err := schedule.NewTrigger(cfg.Schedule, schedule.RunnableFunc(execute), logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}
	logger.Info("running on schedule", "spec", cfg.Schedule, "next_run", trigger.NextRun())
	trigger.Start(ctx)
	<-ctx.Done()
	return nil
}

// runBatch executes one pass over the loaded items and reports the
// outcome through the logger.
func runBatch(ctx context.Context, runner *batch.Runner, items []batch.Item,
	cfg config.Config, logger *logging.Logger, stream bool) error {

	onLoad := func(snap batch.Snapshot, _ ...any) {
		logger.Info("batch complete", "items", len(snap.State.Completed), "winner", snap.State.Winner)
	}
	onFail := func(snap batch.Snapshot, _ ...any) {
		logger.Error("batch failed", "failed", snap.State.Failed, "winner", snap.State.Winner)
	}

	outcome, err := runner.Run(ctx, items, onLoad, onFail,
		batch.Blocking(!stream),
		batch.MaxConcurrent(cfg.Batch.MaxConcurrent),
	)
	if err != nil {
		return err
	}

	if stream {
		// Settle handles one at a time so progress is visible as each
		// item lands rather than at the end of the run.
		for i, handle := range outcome.Handles {
			if _, err := handle.Wait(); err != nil {
				logger.Warn("item errored", "id", items[i].ID, "error", err)
				continue
			}
			logger.Info("item settled", "id", items[i].ID,
				"failed", outcome.Coordinator.TaskFailed(items[i].ID))
		}
	}

	if outcome.Coordinator.HasFailed() {
		return fmt.Errorf("batch completed with failures: %v", outcome.Coordinator.FailedIDs())
	}
	return nil
}

// buildRunner assembles the transport client, resolver, strategy, and
// recorder described by the configuration.
func buildRunner(cfg config.Config, logger *logging.Logger) (*batch.Runner, error) {
	client := transport.New(transport.Config{
		BaseURL:    cfg.Transport.BaseURL,
		Timeout:    cfg.Transport.Timeout,
		RateLimit:  cfg.Transport.RateLimit,
		MaxRetries: cfg.Transport.MaxRetries,
	}, transport.WithLogger(logger.Logger))

	opts := []batch.Option{
		batch.WithLogger(logger.Logger),
		batch.WithStrategy(strategyByName(cfg.Batch.Strategy)),
	}

	if cfg.Operations != "" {
		table, err := dispatch.Load(cfg.Operations)
		if err != nil {
			return nil, fmt.Errorf("failed to load operations table: %w", err)
		}
		opts = append(opts, batch.WithResolver(table))
	}

	if cfg.Metrics.PushURL != "" {
		reg := metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Metrics.PushURL,
			Prefix:   cfg.Metrics.Prefix,
			Job:      cfg.Metrics.JobName,
			Instance: cfg.Metrics.Instance,
		})
		recorder, err := metrics.NewRecorder(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to create recorder: %w", err)
		}
		opts = append(opts, batch.WithRecorder(recorder))
	}

	return batch.New(client, opts...), nil
}

func strategyByName(name string) batch.Strategy {
	switch name {
	case "store-always":
		return batch.StoreAlways
	case "store-none":
		return batch.StoreNone
	default:
		return batch.StoreStatus
	}
}

// itemSpec is the YAML shape of one work item in a batch file.
type itemSpec struct {
	ID      string        `yaml:"id"`
	Method  string        `yaml:"method"`
	URL     string        `yaml:"url"`
	Op      string        `yaml:"op"`
	Data    any           `yaml:"data"`
	Handler string        `yaml:"handler"`
	Options batch.Options `yaml:"options"`
}

type batchFile struct {
	Items []itemSpec `yaml:"items"`
}

// loadItems reads a batch file and resolves handler names against the
// given registry.
func loadItems(path string, handlers *registry.Registry[batch.Handler]) ([]batch.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file batchFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	items := make([]batch.Item, len(file.Items))
	for i, spec := range file.Items {
		item := batch.Item{
			ID:      spec.ID,
			Method:  spec.Method,
			URL:     spec.URL,
			Op:      spec.Op,
			Data:    spec.Data,
			Options: spec.Options,
		}
		if spec.Handler != "" {
			handler, ok := handlers.Lookup(spec.Handler)
			if !ok {
				return nil, fmt.Errorf("item %q: unknown handler %q (have %v)",
					spec.ID, spec.Handler, handlers.Names())
			}
			item.Handler = handler
		}
		items[i] = item
	}
	return items, nil
}

// builtinHandlers returns the handlers a batch file may name without any
// embedding program registering its own.
func builtinHandlers() *registry.Registry[batch.Handler] {
	handlers := registry.New[batch.Handler]()
	mustRegister(handlers, "json", func(raw any) any {
		resp, ok := raw.(*transport.Response)
		if !ok {
			return false
		}
		var decoded any
		if err := resp.JSON(&decoded); err != nil {
			return false
		}
		return decoded
	})
	mustRegister(handlers, "body", func(raw any) any {
		resp, ok := raw.(*transport.Response)
		if !ok {
			return false
		}
		return string(resp.Body)
	})
	return handlers
}

// mustRegister panics on a duplicate built-in handler name, which can only
// happen through a programming error here.
func mustRegister(handlers *registry.Registry[batch.Handler], name string, handler batch.Handler) {
	if err := handlers.Register(name, handler); err != nil {
		panic(fmt.Sprintf("registering builtin handler %q: %v", name, err))
	}
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to config file")
	configPathShort := flag.String("c", "", "Path to config file (shorthand)")
	operationsPath := flag.String("operations", "", "Path to operations table (overrides config)")
	batchPath := flag.String("batch", "", "Path to batch items file")
	batchPathShort := flag.String("b", "", "Path to batch items file (shorthand)")
	validate := flag.Bool("validate", false, "Validate the batch file and exit")
	version := flag.Bool("version", false, "Print version information and exit")
	stream := flag.Bool("stream", false, "Log each item as it settles instead of at the end")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nbatchctl - run a batch of named HTTP work items\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config fetchkit.yaml --batch items.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -b items.yaml -validate\n", os.Args[0])
	}

	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" && *configPathShort != "" {
		cfgPath = *configPathShort
	}
	itemsPath := *batchPath
	if itemsPath == "" && *batchPathShort != "" {
		itemsPath = *batchPathShort
	}

	return Args{
		ConfigPath:     cfgPath,
		OperationsPath: *operationsPath,
		BatchPath:      itemsPath,
		Validate:       *validate,
		Version:        *version,
		Stream:         *stream,
	}
}
