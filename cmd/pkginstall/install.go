package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/distribution/pkginstall/events"
	"github.com/distribution/pkginstall/internal/dcontext"
)

type installFlags struct {
	cacheDir      string
	prefix        string
	restore       bool
	dev           bool
	development   bool
	production    bool
	only          string
	also          string
	force         bool
	ignoreScripts bool
	concurrency   int
	dryRun        bool
}

func newInstallCmd() *cobra.Command {
	var flags installFlags

	cmd := &cobra.Command{
		Use:   "install",
		Short: "install the project's dependency tree into the content-addressed store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.cacheDir, "cache", "", "content-addressed store root (overrides config file)")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "install prefix; defaults to the current directory")
	cmd.Flags().BoolVar(&flags.restore, "restore", true, "when false, reuse cached package metadata instead of refetching")
	cmd.Flags().BoolVar(&flags.dev, "dev", false, "include devDependencies")
	cmd.Flags().BoolVar(&flags.development, "development", false, "alias of --dev")
	cmd.Flags().BoolVar(&flags.production, "production", false, "exclude devDependencies")
	cmd.Flags().StringVar(&flags.only, "only", "", "prod|dev: restrict to one dependency class")
	cmd.Flags().StringVar(&flags.also, "also", "", "dev: also include devDependencies")
	cmd.Flags().BoolVar(&flags.force, "force", false, "set force in the configuration (no built-in collaborator reads it)")
	cmd.Flags().BoolVar(&flags.ignoreScripts, "ignore-scripts", false, "skip the lifecycle-script runner")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "override the dependency iterator's in-flight visitor bound")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "use an in-memory store and report what would happen")

	return cmd
}

func runInstall(cmd *cobra.Command, flags installFlags) error {
	cfg, err := loadConfiguration(cfgFile)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("cache") {
		cfg.Cache.Dir = flags.cacheDir
	}
	if cfg.Cache.Dir == "" && !flags.dryRun {
		return fmt.Errorf("install: --cache or config cache.dir is required (or pass --dry-run)")
	}
	if cmd.Flags().Changed("restore") {
		cfg.Restore = flags.restore
	}
	cfg.Dev = cfg.Dev || flags.dev
	cfg.Development = cfg.Development || flags.development
	cfg.Production = cfg.Production || flags.production
	if flags.only != "" {
		cfg.Only = flags.only
	}
	if flags.also != "" {
		cfg.Also = flags.also
	}
	cfg.Force = cfg.Force || flags.force
	cfg.IgnoreScripts = cfg.IgnoreScripts || flags.ignoreScripts
	if flags.concurrency > 0 {
		cfg.Concurrency = flags.concurrency
	}

	configureLogging(cfg)

	prefix := flags.prefix
	if prefix == "" {
		prefix, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("install: resolving working directory: %w", err)
		}
	}

	queue := events.NewQueue(events.FuncSink(func(e events.Event) error {
		logEvent(e)
		return nil
	}))

	orch, err := newOrchestrator(cfg, flags.dryRun, queue)
	if err != nil {
		return err
	}

	ctx := dcontext.WithLogger(cmd.Context(), logrus.NewEntry(logrus.StandardLogger()))
	result, err := orch.Run(ctx, prefix)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	logrus.Infof(
		"install: %d packages, %d purged (prepare=%s fetchTree=%s buildPackageMap=%s writePackageMap=%s buildTree=%s)",
		result.PkgCount, len(result.Purged),
		result.Timings.Prepare, result.Timings.FetchTree, result.Timings.BuildPackageMap,
		result.Timings.WritePackageMap, result.Timings.BuildTree,
	)
	return nil
}

func logEvent(e events.Event) {
	switch e.Type {
	case events.TypePackageFetched:
		logrus.WithField("address", e.Address).Infof("fetched %s", e.Name)
	case events.TypePackageCacheHit:
		logrus.WithField("address", e.Address).Debugf("cache hit %s", e.Name)
	case events.TypePackageFailed:
		logrus.WithField("address", e.Address).Warnf("failed %s: %v", e.Name, e.Err)
	case events.TypeStageCompleted:
		logrus.Debugf("stage %s complete", e.Name)
	}
}
