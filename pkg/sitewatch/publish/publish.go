// Package publish makes archived snapshots reachable from outside the host
// and returns the link placed in reports and notifications.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	s3v2 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/archive"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
)

// Publisher makes a snapshot reachable. Location is known before anything
// is uploaded so the link can be written into the report that Publish ships.
type Publisher interface {
	Location(entry *archive.Entry) string
	Publish(ctx context.Context, entry *archive.Entry) error
}

// siteSegment is the path segment the archive stored the snapshot under.
func siteSegment(entry *archive.Entry) string {
	return filepath.Base(filepath.Dir(entry.Dir))
}

// LinkPublisher uploads nothing. It is used when the archive directory is
// already served at Base.
type LinkPublisher struct {
	Base string
}

// Location returns <Base>/<site>/<id>/diff.html.
func (p LinkPublisher) Location(entry *archive.Entry) string {
	return joinURL(p.Base, siteSegment(entry), entry.ID, archive.PageFile)
}

// Publish is a no-op.
func (LinkPublisher) Publish(context.Context, *archive.Entry) error {
	return nil
}

// Uploader is the subset of the S3 client used for publishing.
type Uploader interface {
	PutObject(ctx context.Context, params *s3v2.PutObjectInput, optFns ...func(*s3v2.Options)) (*s3v2.PutObjectOutput, error)
}

// S3Config configures an S3Publisher.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// LinkBase replaces the virtual-hosted bucket URL in links, for example
	// a CDN in front of the bucket.
	LinkBase string
}

// S3Publisher uploads a snapshot's report and diff page to S3.
type S3Publisher struct {
	client Uploader
	cfg    S3Config
}

// NewS3Publisher returns a publisher using client.
func NewS3Publisher(client Uploader, cfg S3Config) *S3Publisher {
	return &S3Publisher{client: client, cfg: cfg}
}

// published lists the snapshot files uploaded with their content types.
var published = []struct {
	name        string
	contentType string
}{
	{archive.ReportFile, "application/json"},
	{archive.PageFile, "text/html; charset=utf-8"},
}

// Location returns the link to the uploaded diff.html.
func (p *S3Publisher) Location(entry *archive.Entry) string {
	return p.Link(p.Key(entry, archive.PageFile))
}

// Publish uploads report.json and diff.html to <prefix>/<site>/<id>/.
func (p *S3Publisher) Publish(ctx context.Context, entry *archive.Entry) error {
	log := logging.Get("publish")

	for _, f := range published {
		key := p.Key(entry, f.name)
		if err := p.upload(ctx, filepath.Join(entry.Dir, f.name), key, f.contentType); err != nil {
			return err
		}
		log.Debug("uploaded", "bucket", p.cfg.Bucket, "key", key)
	}

	log.Info("snapshot published", "id", entry.ID, "location", p.Location(entry))
	return nil
}

func (p *S3Publisher) upload(ctx context.Context, file, key, contentType string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()

	_, err = p.client.PutObject(ctx, &s3v2.PutObjectInput{
		Bucket:      awsv2.String(p.cfg.Bucket),
		Key:         awsv2.String(key),
		Body:        f,
		ContentType: awsv2.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", p.cfg.Bucket, key, err)
	}
	return nil
}

// Key returns the object key of a snapshot file.
func (p *S3Publisher) Key(entry *archive.Entry, name string) string {
	return path.Join(strings.Trim(p.cfg.Prefix, "/"), siteSegment(entry), entry.ID, name)
}

// Link returns the public URL of an object key.
func (p *S3Publisher) Link(key string) string {
	if p.cfg.LinkBase != "" {
		return joinURL(p.cfg.LinkBase, key)
	}
	if p.cfg.Region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", p.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, key)
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + path.Join(parts...)
}

// options holds optional overrides for AWS config loading.
type options struct {
	profile string
	region  string
}

// Option customizes how AWS config is loaded. With no options the shell
// environment and shared config chain are used.
type Option func(*options)

// WithProfile sets the shared config profile.
func WithProfile(profile string) Option {
	return func(o *options) { o.profile = profile }
}

// WithRegion sets the region override.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// LoadAWSConfig loads AWS SDK v2 config from the environment, applying
// opts.
func LoadAWSConfig(ctx context.Context, opts ...Option) (awsv2.Config, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var loadOpts []func(*config.LoadOptions) error
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return awsv2.Config{}, fmt.Errorf("loading aws config: %w", err)
	}
	return cfg, nil
}

// NewS3 builds an S3Publisher with a client from the default AWS config
// chain. The resolved region is used for links when cfg.Region is empty.
func NewS3(ctx context.Context, cfg S3Config, opts ...Option) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is not configured")
	}
	if cfg.Region != "" {
		opts = append(opts, WithRegion(cfg.Region))
	}

	awsCfg, err := LoadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}
	return NewS3Publisher(s3v2.NewFromConfig(awsCfg), cfg), nil
}
