package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentic-research/regionseed/internal/config"
	"github.com/agentic-research/regionseed/internal/seed"
	"github.com/agentic-research/regionseed/internal/source"
	"github.com/agentic-research/regionseed/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type seedOptions struct {
	*globalOptions
	backend     string
	uri         string
	database    string
	sqlitePath  string
	dryRun      bool
	manifestDir string
}

func newSeedCmd(global *globalOptions) *cobra.Command {
	opts := &seedOptions{globalOptions: global}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load every level's dataset into the store, root level first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSeed(ctx, cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.backend, "store", "", "Store backend: mongo, sqlite or memory")
	cmd.Flags().StringVar(&opts.uri, "uri", "", "MongoDB connection URI")
	cmd.Flags().StringVar(&opts.database, "database", "", "MongoDB database name")
	cmd.Flags().StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database file")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Run the whole pipeline against an in-memory store")
	cmd.Flags().StringVar(&opts.manifestDir, "manifest-dir", "", "Write a JSON run manifest into this directory")
	return cmd
}

func runSeed(ctx context.Context, cmd *cobra.Command, opts *seedOptions) error {
	c, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		c.Store.Backend = opts.backend
	}
	if flags.Changed("uri") {
		c.Store.URI = opts.uri
	}
	if flags.Changed("database") {
		c.Store.Database = opts.database
	}
	if flags.Changed("sqlite-path") {
		c.Store.SQLitePath = opts.sqlitePath
	}
	if opts.dryRun {
		c.Store.Backend = config.BackendMemory
	}
	if err := c.Validate(); err != nil {
		return withCode(exitUsage, err)
	}

	log := c.Logger(cmd.ErrOrStderr())
	h, err := c.Hierarchy()
	if err != nil {
		return withCode(exitUsage, err)
	}
	datasets, err := source.LoadAll(c.DataDir, h)
	if err != nil {
		return withCode(exitValidation, err)
	}

	timeout, _ := c.RunTimeout()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s, closeStore, err := openStore(ctx, c, log)
	if err != nil {
		return withCode(exitStore, err)
	}
	defer closeStore()

	report, runErr := seed.NewEngine(h, s, log).Run(ctx, datasets)
	if report == nil {
		return withCode(exitValidation, runErr)
	}
	if opts.manifestDir != "" {
		path, err := report.WriteManifest(opts.manifestDir)
		if err != nil {
			log.WithError(err).Error("manifest not written")
		} else {
			log.WithField("path", path).Info("manifest written")
		}
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.StatusLine())
	return withCode(stageExitCode(runErr), runErr)
}

func stageExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, seed.ErrReadBack):
		return exitReadBack
	default:
		return exitInsert
	}
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, c *config.Config, log logrus.FieldLogger) (store.Store, func(), error) {
	fields := logrus.Fields{"backend": c.Store.Backend}
	switch c.Store.Backend {
	case config.BackendMemory:
		log.WithFields(fields).Info("using in-memory store, nothing will be persisted")
		return store.NewMemory(), func() {}, nil
	case config.BackendSQLite:
		s, err := store.OpenSQLite(c.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		fields["path"] = c.Store.SQLitePath
		log.WithFields(fields).Info("store opened")
		return s, func() { _ = s.Close() }, nil
	case config.BackendMongo:
		s, err := store.OpenMongo(ctx, c.Store.URI, c.Store.Database)
		if err != nil {
			return nil, nil, err
		}
		fields["database"] = c.Store.Database
		log.WithFields(fields).Info("store opened")
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Close(closeCtx)
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
}
