package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Fyun48/autoextract"
	"github.com/Fyun48/autoextract/internal/config"
	"github.com/Fyun48/autoextract/internal/logging"
	"github.com/Fyun48/autoextract/internal/store"
)

// globals set by the persistent flags
type globals struct {
	verbosity  int
	configFile string
	logFile    string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "autoextract",
		Short: "Extract downloaded archives automatically",
		Long: `autoextract expands archives dropped into a download directory: nested
archives are unpacked up to a depth limit, junk files are filtered, name
collisions are resolved and the source archive is removed only after
everything succeeded.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(g.verbosity, g.logFile)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().CountVarP(&g.verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/autoextract/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "log file (default is $XDG_STATE_HOME/autoextract/autoextract.log)")

	rootCmd.AddCommand(
		newRunCmd(g),
		newWatchCmd(g),
		newHistoryCmd(g),
		newTreeCmd(g),
		newStatsCmd(g),
		newRequeueCmd(g),
	)

	rootCmd.SetErr(os.Stderr)
	return rootCmd
}

// app is the wiring shared by the commands.
type app struct {
	cfg    *config.Config
	store  *store.SQLiteStore
	logger zerolog.Logger
}

func openApp(ctx context.Context, g *globals) (*app, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, err
	}
	s, err := store.Open(ctx, cfg.Paths.Database)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: s, logger: log.Logger}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Cannot close database")
	}
}

// pipeline builds the extraction pipeline with a tracker backed by the
// failures table.
func (a *app) pipeline(ctx context.Context, extract autoextract.ExtractConfig, extraPasswords []string, sink autoextract.Sink) (*autoextract.Pipeline, error) {
	tracker := autoextract.NewFailureTracker(a.cfg.Failure.MaxFailures)
	if err := a.store.Attach(ctx, tracker, a.logger); err != nil {
		return nil, err
	}

	extractor, err := a.extractor()
	if err != nil {
		return nil, err
	}

	sinks := autoextract.MultiSink{autoextract.NewLogSink(a.logger)}
	if sink != nil {
		sinks = append(sinks, sink)
	}

	passwords := autoextract.ChainPasswords{
		autoextract.StaticPasswords(extraPasswords),
		a.cfg.PasswordProvider(),
	}

	return autoextract.New(extract,
		autoextract.WithLogger(a.logger),
		autoextract.WithExtractor(extractor),
		autoextract.WithStore(a.store),
		autoextract.WithTracker(tracker),
		autoextract.WithPasswords(passwords),
		autoextract.WithTimeout(a.cfg.Executor.Timeout),
		autoextract.WithSink(sinks),
	)
}

func (a *app) extractor() (autoextract.Extractor, error) {
	switch a.cfg.Executor.Backend {
	case config.BackendUnrar:
		return autoextract.NewCommandExtractor(autoextract.CommandUnrar, a.cfg.Executor.Binary, a.logger)
	case config.Backend7z:
		return autoextract.NewCommandExtractor(autoextract.CommandSevenZip, a.cfg.Executor.Binary, a.logger)
	default:
		return autoextract.NewNativeExtractor(a.logger), nil
	}
}

func withApp(g *globals, fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, g)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	}
}
