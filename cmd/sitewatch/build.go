package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/archive"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/beautify"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/command"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/config"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/history"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/mirror"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/notify"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/pipeline"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/publish"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/render"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/runlock"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/tuner"
)

// checkOptions switches off parts of a check from the command line.
type checkOptions struct {
	noNotify  bool
	noArchive bool
}

// session is a checker together with the resources it holds open.
type session struct {
	cfg     *config.Config
	checker *pipeline.Checker
	archive *archive.Archive
	history *history.Store
}

// Close releases the history store. Closing twice is a no-op.
func (s *session) Close() error {
	if s.history == nil {
		return nil
	}
	err := s.history.Close()
	s.history = nil
	return err
}

// workerConfig sizes the worker pools for this machine.
func workerConfig(override int) tuner.OptimalConfig {
	resources, err := tuner.Detect()
	if err != nil {
		logging.Get("pipeline").Warn("resource detection incomplete", "error", err)
	}
	return tuner.CalculateWithOverrides(resources, override)
}

// newSession wires a checker from cfg.
func newSession(ctx context.Context, cfg *config.Config, opts checkOptions) (*session, error) {
	workers := workerConfig(cfg.Workers)
	logging.Get("pipeline").Debug("worker pools",
		"hash", workers.HashWorkers, "render", workers.RenderWorkers, "process", workers.ProcessWorkers)

	s := &session{cfg: cfg}

	mirrorRunner := command.ExecRunner{Timeout: cfg.Mirror.Timeout}
	pipelineOpts := []pipeline.Option{
		pipeline.WithWorkers(workers),
		pipeline.WithFormat(notify.FormatOptions{Mention: cfg.Slack.Mention}),
	}

	if cfg.Beautify.Enabled {
		pipelineOpts = append(pipelineOpts,
			pipeline.WithBeautifier(beautify.New(command.ExecRunner{}, cfg.Beautify.Binary, workers.ProcessWorkers)))
	}

	if cfg.Archive.Enabled && !opts.noArchive {
		a, err := archive.New(cfg.Archive.Path)
		if err != nil {
			return nil, err
		}
		s.archive = a
		pipelineOpts = append(pipelineOpts, pipeline.WithArchive(a))

		publisher, err := newPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if publisher != nil {
			pipelineOpts = append(pipelineOpts, pipeline.WithPublisher(publisher))
		}
	}

	if cfg.Slack.WebhookURL != "" && !opts.noNotify {
		pipelineOpts = append(pipelineOpts, pipeline.WithNotifier(notify.NewWebhook(cfg.Slack.WebhookURL)))
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, err
	}
	s.history = store
	pipelineOpts = append(pipelineOpts, pipeline.WithHistory(store))

	s.checker = pipeline.New(cfg.WorkDir,
		mirror.New(mirrorRunner, cfg.Mirror.Binary, cfg.Mirror.Args),
		render.NewHTMLRenderer(),
		pipelineOpts...)
	return s, nil
}

// newPublisher returns the S3 publisher when a bucket is configured, a
// link-only publisher when the archive is served at a known URL, or nil.
func newPublisher(ctx context.Context, cfg *config.Config) (publish.Publisher, error) {
	if cfg.S3.Bucket != "" {
		var opts []publish.Option
		if cfg.S3.Profile != "" {
			opts = append(opts, publish.WithProfile(cfg.S3.Profile))
		}
		p, err := publish.NewS3(ctx, publish.S3Config{
			Bucket:   cfg.S3.Bucket,
			Prefix:   cfg.S3.Prefix,
			Region:   cfg.S3.Region,
			LinkBase: cfg.S3.LinkBase,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("setting up s3 publishing: %w", err)
		}
		return p, nil
	}
	if cfg.Archive.LinkBase != "" {
		return publish.LinkPublisher{Base: cfg.Archive.LinkBase}, nil
	}
	return nil, nil
}

// lockWorkDir takes the run lock on the configured work directory.
func lockWorkDir(cfg *config.Config) (*runlock.Lock, error) {
	lock, err := runlock.Acquire(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("locking work directory: %w", err)
	}
	return lock, nil
}

// openArchive returns the configured archive.
func openArchive(cfg *config.Config) (*archive.Archive, error) {
	if cfg.Archive.Path == "" {
		return nil, errors.New("archive path is not configured")
	}
	return archive.New(cfg.Archive.Path)
}
