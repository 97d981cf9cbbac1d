package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/alexisbeaulieu97/jumpgate/internal/admission"
	usecase "github.com/alexisbeaulieu97/jumpgate/internal/application/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/config"
	"github.com/alexisbeaulieu97/jumpgate/internal/engine"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/ansible"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/bastion"
	infraconfig "github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/config"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/events"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/history"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/redisstore"
	"github.com/alexisbeaulieu97/jumpgate/internal/policy"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// app holds the wired gateway for one CLI invocation.
type app struct {
	cfg     *config.Config
	logger  ports.Logger
	store   ports.CounterStore
	history *history.Repo
	useCase *usecase.UseCase
	closers []func()
}

// lookupEnv is swapped in tests.
var lookupEnv config.LookupFunc = os.LookupEnv

// loadConfig reads configuration while buffering log output until the real
// logger exists.
func loadConfig(ctx context.Context, flags *rootFlags, logOut io.Writer) (*config.Config, ports.Logger, error) {
	buffer := logging.NewEventBuffer(0)
	loader := infraconfig.NewYAMLLoader(logging.NewBufferedLogger(buffer), lookupEnv)

	cfg, err := loader.Load(ctx, flags.configPath)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if flags.verbose {
		level = "debug"
	}
	human := isTerminal(logOut)
	if cfg.Log.Human != nil {
		human = *cfg.Log.Human
	}

	logger, err := logging.New(logging.Options{
		Writer:        logOut,
		Level:         level,
		HumanReadable: human,
		Layer:         "cli",
	})
	if err != nil {
		return nil, nil, err
	}
	buffer.Flush(logger)
	return cfg, logger, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// openHistory opens the history database when enabled; nil otherwise.
func openHistory(cfg *config.Config) (*history.Repo, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	repo, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", cfg.History.Path, err)
	}
	return repo, nil
}

func buildApp(ctx context.Context, flags *rootFlags, logOut io.Writer) (*app, error) {
	cfg, logger, err := loadConfig(ctx, flags, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	if cfg.Redis.Addr != "" {
		store := redisstore.Dial(redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.store = store
		a.closers = append(a.closers, func() { _ = store.Close() })
	} else {
		logger.Warn(ctx, "redis not configured; admission limits are local to this process")
		a.store = admission.NewMemoryStore()
	}

	rules, err := policy.NewCELPolicy(cfg.Policy.Expression)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher := events.NewLoggingPublisher(logger)

	var leaser ports.CredentialLeaser
	if cfg.Bastion.Enabled() {
		leaser = bastion.NewLeaser(bastion.Config{
			Address:        cfg.Bastion.Address,
			Port:           cfg.Bastion.Port,
			User:           cfg.Bastion.User,
			JumpKeyPath:    cfg.Bastion.JumpPrivateKey,
			SourceKeyPath:  cfg.Bastion.SourcePrivateKey,
			ScratchDir:     cfg.KeyScratchDir(),
			KnownHostsPath: cfg.Bastion.KnownHosts,
			DialTimeout:    cfg.Bastion.DialTimeout,
		}, bastion.WithLeaserLogger(logger))
	}

	runner := ansible.NewRunner(ansible.RunnerConfig{
		Binary:          cfg.Backend.Binary,
		Timeout:         cfg.Backend.Timeout,
		RotateArtifacts: cfg.Backend.RotateArtifacts,
	}, ansible.WithRunnerLogger(logger))

	var recorder ports.HistoryRecorder
	if a.history, err = openHistory(cfg); err != nil {
		a.Close()
		return nil, err
	}
	if a.history != nil {
		repo := a.history
		writer := history.NewWriter(repo, history.WriterOptions{
			FlushInterval: cfg.History.FlushInterval,
			BatchSize:     cfg.History.BatchSize,
			MaxRows:       cfg.History.MaxRows,
			Logger:        logger,
		})
		recorder = writer
		a.closers = append(a.closers, func() { _ = repo.Close() }, writer.Close)
	}

	inventory := ansible.NewInventoryWriter(cfg.ScratchDir(), ansible.BastionRoute{
		Address:     cfg.Bastion.Address,
		User:        cfg.Bastion.User,
		JumpKeyPath: cfg.Bastion.JumpPrivateKey,
	})

	a.useCase = usecase.NewUseCase(usecase.Dependencies{
		Admitter:  admission.NewController(a.store, limitsFrom(cfg.Limits), admission.WithControllerLogger(logger)),
		Policy:    rules,
		Leaser:    leaser,
		Inventory: inventory,
		Runner:    engine.NewDriver(runner, engine.WithDriverLogger(logger), engine.WithDriverEvents(publisher)),
		History:   recorder,
		Events:    publisher,
		Logger:    logger,
	}, usecase.Settings{
		WorkDir: cfg.Backend.WorkingDir,
		Timeout: cfg.Server.RequestTimeout,
	})

	return a, nil
}

func limitsFrom(cfg config.LimitsConfig) admission.Limits {
	return admission.Limits{
		BucketKey:      cfg.BucketKey,
		Capacity:       cfg.Capacity,
		RefillRate:     cfg.RefillRate,
		BucketTTL:      cfg.BucketTTL,
		ConcurrencyKey: cfg.ConcurrencyKey,
		MaxConcurrent:  cfg.MaxConcurrent,
		CounterTTL:     cfg.CounterTTL,
		WaitTimeout:    cfg.WaitTimeout,
		RetryInterval:  cfg.RetryInterval,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
