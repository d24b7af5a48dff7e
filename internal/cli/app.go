package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/config"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/live"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/logger"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/remote"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/syncer"
)

// app is the device wired from configuration.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	st     *store.Store
	rec    *recorder.Recorder
	hub    *live.Hub
	client *remote.Client
	engine *syncer.Engine
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Encoding: cfg.Log.Encoding})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	st, err := store.Open(cfg.Database.Path, store.WithLogger(log))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	clientOpts := []remote.Option{
		remote.WithTimeout(cfg.Server.Timeout),
		remote.WithDeviceID(cfg.Device.ID),
	}
	if cfg.Server.Token != "" {
		clientOpts = append(clientOpts, remote.WithToken(cfg.Server.Token))
	}
	client := remote.New(cfg.Server.URL, clientOpts...)

	return &app{
		cfg:    cfg,
		log:    log,
		st:     st,
		rec:    recorder.New(st, recorder.WithDeviceID(cfg.Device.ID), recorder.WithLogger(log)),
		hub:    live.NewHub(st, log),
		client: client,
		engine: syncer.New(st, client,
			syncer.WithLogger(log),
			syncer.WithRefresh(cfg.Sync.RefreshAfterDrain)),
	}, nil
}

func (a *app) Close() {
	if err := a.st.Close(); err != nil {
		a.log.Error("error closing database", zap.Error(err))
	}
	_ = a.log.Sync()
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// withApp opens the device for the duration of one command.
func withApp(opts *RootOptions, fn func(ctx context.Context, a *app, out *OutputFormatter, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(opts)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, a, formatter(opts, cmd), args)
	}
}
