package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"b3crawl/internal/browser"
	"b3crawl/internal/progress"
	"b3crawl/internal/types"
)

// ErrIndexUnreachable is returned when the index frame never showed up within the attempt budget
var ErrIndexUnreachable = errors.New("index unreachable")

// Configuration holds the crawler settings
type Configuration struct {
	IndexURL       string
	IndexFrameID   string
	LetterClass    string
	BulletClass    string
	ProfileFrameID string
	CodeClass      string

	IndexTimeout     time.Duration
	ProfileTimeout   time.Duration
	SettleTimeout    time.Duration
	SettlePoll       time.Duration
	MaxIndexAttempts int
	BackoffBase      time.Duration
	BackoffMax       time.Duration

	// Letters restricts traversal to these starting letters when set
	Letters []string
}

// CodeCache stores trading codes by profile URL across runs
type CodeCache interface {
	Get(ctx context.Context, profileURL string) (string, bool, error)
	Set(ctx context.Context, profileURL, codes string) error
}

// DatasetWriter persists a finished dataset and reports where
type DatasetWriter interface {
	WriteDataset(d *types.Dataset) (string, error)
}

// Crawler walks the listed companies index and extracts trading codes.
// It owns the navigator for the whole run; Close releases it.
type Crawler struct {
	config   Configuration
	nav      browser.Navigator
	logger   *log.Logger
	progress progress.Reporter
	cache    CodeCache
	sleep    func(context.Context, time.Duration) error
	closed   bool
}

// Option customises a Crawler
type Option func(*Crawler)

// WithLogger sets the logger used for recoverable failures and progress details
func WithLogger(l *log.Logger) Option {
	return func(c *Crawler) { c.logger = l }
}

// WithProgress sets the progress reporter
func WithProgress(p progress.Reporter) Option {
	return func(c *Crawler) { c.progress = p }
}

// WithCache enables the code cache
func WithCache(cc CodeCache) Option {
	return func(c *Crawler) { c.cache = cc }
}

// New creates a crawler driving nav
func New(config Configuration, nav browser.Navigator, opts ...Option) *Crawler {
	c := &Crawler{
		config:   config,
		nav:      nav,
		logger:   log.Default(),
		progress: progress.Nop{},
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.MaxIndexAttempts < 1 {
		c.config.MaxIndexAttempts = 1
	}
	return c
}

// Close releases the browser session. It is safe to call more than once.
func (c *Crawler) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.nav.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Collect traverses the index and extracts the code of every company found
func (c *Crawler) Collect(ctx context.Context) (*types.Dataset, error) {
	d, err := c.Traverse(ctx)
	if err != nil {
		return d, err
	}
	if err := c.ExtractCodes(ctx, d.Records); err != nil {
		return d, err
	}
	return d, nil
}

// Complete extracts codes for the records of a loaded dataset that have none
func (c *Crawler) Complete(ctx context.Context, d *types.Dataset) error {
	return c.ExtractCodes(ctx, d.WithoutCode())
}

// Assemble persists the dataset once every record went through code extraction
func (c *Crawler) Assemble(d *types.Dataset, w DatasetWriter) (string, error) {
	path, err := w.WriteDataset(d)
	if err != nil {
		return "", err
	}

	c.logger.Info("crawl finished", "companies", d.Len(), "without_code", len(d.WithoutCode()), "path", path)
	return path, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
