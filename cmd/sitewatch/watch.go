package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/config"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Check all sites repeatedly",
	Long: `Check every configured site, then again every interval until interrupted.

The config file is watched: when it changes the site list, interval and
integrations are reloaded before the next run. Archived snapshots older
than archive.retention_days are removed after every run.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "time between runs (default from config)")
	watchCmd.Flags().Bool("once", false, "run a single cycle and exit")
	_ = viper.BindPFlag("interval", watchCmd.Flags().Lookup("interval"))

	rootCmd.AddCommand(watchCmd)
}

// runWatch runs check cycles until the context is cancelled.
func runWatch(cmd *cobra.Command, args []string) error {
	log := logging.Get("watch")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lock, err := lockWorkDir(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, cfg, checkOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	reload := make(chan struct{}, 1)
	if path := viper.ConfigFileUsed(); path != "" {
		w, err := watcher.New()
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Watch(path); err != nil {
			log.Warn("config file not watched", "path", path, "error", err)
		} else {
			go w.Run(ctx, func(string) {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		}
	}

	once, _ := cmd.Flags().GetBool("once")
	printInfo("Watching %d site(s) every %s", len(cfg.Sites), interval(cfg))

	for {
		runCycle(ctx, s)
		if once || ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(interval(s.cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("watch stopped")
			return nil

		case <-timer.C:

		case <-reload:
			timer.Stop()
			next, err := reloadSession(ctx, s)
			if next == nil {
				return err
			}
			s = next
			if err != nil {
				log.Error("config reload failed, keeping previous config", "error", err)
				printError("config reload failed: %v", err)
				continue
			}
			printInfo("Configuration reloaded: %d site(s) every %s", len(s.cfg.Sites), interval(s.cfg))
		}
	}
}

// runCycle checks every site once and prunes old snapshots. Failures are
// logged; the loop keeps going.
func runCycle(ctx context.Context, s *session) {
	log := logging.Get("watch")
	start := time.Now()

	reports, err := s.checker.CheckAll(ctx, s.cfg.Sites)
	if err != nil {
		printError("%v", err)
	}

	changed := 0
	for _, r := range reports {
		if !r.Baseline && r.HasChanges() {
			changed++
			printInfo("%s: changes detected (%s)", r.Site, r.ArchiveID)
		}
	}
	log.Info("cycle finished", "sites", len(s.cfg.Sites), "changed", changed, "elapsed", time.Since(start))

	if s.archive != nil && s.cfg.Archive.RetentionDays > 0 {
		if _, err := s.archive.Cleanup(s.cfg.Archive.RetentionDays); err != nil {
			log.Warn("snapshot cleanup failed", "error", err)
		}
	}
}

// reloadSession rereads the config file and returns the session to continue
// with. When the new configuration cannot be used the previous session is
// returned together with the error; a nil session means the previous one
// could not be restored either.
func reloadSession(ctx context.Context, old *session) (*session, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return old, err
	}
	if cfgFlagChanged("interval") {
		cfg.Interval = viper.GetDuration("interval")
	}

	// The history store is a single-writer database: release it first.
	if err := old.Close(); err != nil {
		return nil, fmt.Errorf("closing history: %w", err)
	}
	next, err := newSession(ctx, cfg, checkOptions{})
	if err != nil {
		prev, reopenErr := newSession(ctx, old.cfg, checkOptions{})
		if reopenErr != nil {
			return nil, errors.Join(err, fmt.Errorf("restoring previous config: %w", reopenErr))
		}
		return prev, err
	}
	return next, nil
}

// cfgFlagChanged reports whether a watch flag was set on the command line.
func cfgFlagChanged(name string) bool {
	f := watchCmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// interval returns the time between runs.
func interval(cfg *config.Config) time.Duration {
	if cfg.Interval <= 0 {
		return config.DefaultInterval
	}
	return cfg.Interval
}
