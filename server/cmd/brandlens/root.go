package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brandlens/brandlens/server/internal/alerts"
	"github.com/brandlens/brandlens/server/internal/config"
	"github.com/brandlens/brandlens/server/internal/store"
	"github.com/brandlens/brandlens/server/internal/telemetry"
)

// app holds state shared by every subcommand once the config is loaded.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	cfgPath  string
	level    *slog.LevelVar
	logOut   io.Writer
	counters *telemetry.Counters
}

func newRootCommand() *cobra.Command {
	a := &app{
		v:      viper.New(),
		level:  new(slog.LevelVar),
		logOut: os.Stderr,
	}

	cmd := &cobra.Command{
		Use:               "brandlens",
		Short:             "Brand-monitoring alert server",
		SilenceUsage:      true,
		PersistentPreRunE: a.persistentPreRunE,
	}

	pflags := cmd.PersistentFlags()
	pflags.String("config", "", "Config file path (env BRANDLENS_CONFIG)")

	a.v.SetEnvPrefix("BRANDLENS")
	a.v.BindEnv("config")                            //nolint:errcheck
	a.v.BindPFlag("config", pflags.Lookup("config")) //nolint:errcheck

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newEvaluateCommand(a))
	cmd.AddCommand(newSweepCommand(a))
	return cmd
}

func (a *app) persistentPreRunE(cmd *cobra.Command, _ []string) error {
	a.cfgPath = a.v.GetString("config")
	if a.cfgPath == "" {
		a.cfg = config.Defaults()
	} else {
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	a.level.Set(a.cfg.Server.Log.SlogLevel())
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{Level: a.level}))
	slog.SetDefault(logger)

	a.counters = telemetry.New()
	return nil
}

// openStore opens the configured storage backend.
func (a *app) openStore() (store.Store, error) {
	s := a.cfg.Server
	switch s.Storage.Driver {
	case "memory":
		return store.NewMemory(s.Evaluation.Window), nil
	case "sqlite":
		st, err := store.OpenSQLite(s.Storage.Path, s.Evaluation.Window)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.Storage.Driver)
	}
}

// newEngine wires an alert engine over st. The returned WebhookNotifier can be
// retargeted on config reload.
func (a *app) newEngine(st store.Store) (*alerts.Engine, *alerts.WebhookNotifier) {
	hooks := alerts.NewWebhookNotifier(a.cfg.Server.Alerts.Webhooks)
	eng := alerts.New(alerts.Deps{
		Rules:    st,
		Metrics:  st,
		Alerts:   st,
		Cases:    st,
		Notifier: alerts.WithLogFallback(hooks),
		Clients:  st,
		Counters: a.counters,
	}, a.cfg.Server.Evaluation.Window)
	return eng, hooks
}
