package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"b3crawl/internal/browser"
	"b3crawl/internal/cache"
	"b3crawl/internal/config"
	"b3crawl/internal/crawler"
	"b3crawl/internal/progress"
	"b3crawl/internal/types"
	"b3crawl/internal/writer"
)

// CLI flags structure
type CLIFlags struct {
	ConfigFile string   `help:"Path to configuration file" default:"b3crawl.yaml" name:"config"`
	Browser    string   `help:"Browser backend: chrome, firefox or http" short:"b"`
	DriverPath string   `help:"Browser executable, or the directory holding it"`
	Output     string   `help:"Directory the dataset is written to" short:"o"`
	Format     string   `help:"Output format: csv or xlsx" short:"f"`
	Input      string   `help:"Previously written CSV whose missing codes are extracted" short:"i" type:"path"`
	Letters    []string `help:"Only crawl these starting letters" sep:","`
	SkipCodes  bool     `help:"Write the company list without visiting profiles"`
	Redis      string   `help:"Redis address used to cache trading codes"`
	Headful    bool     `help:"Show the browser window"`
	Debug      bool     `help:"Enable debug mode" default:"false"`
}

func main() {
	var flags CLIFlags
	kong.Parse(&flags,
		kong.Name("b3crawl"),
		kong.Description("Collect the companies listed on B3 with their trading codes."),
	)

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and overrides it with command line flags
func loadConfig(flags CLIFlags) (config.Configuration, error) {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return cfg, err
	}

	if flags.Browser != "" {
		cfg.Browser = flags.Browser
	}
	if flags.DriverPath != "" {
		cfg.DriverPath = flags.DriverPath
	}
	if flags.Output != "" {
		cfg.OutputDir = flags.Output
	}
	if flags.Format != "" {
		cfg.Format = flags.Format
	}
	if flags.Input != "" {
		cfg.Input = flags.Input
	}
	if len(flags.Letters) > 0 {
		cfg.Letters = flags.Letters
	}
	if flags.SkipCodes {
		cfg.SkipCodes = true
	}
	if flags.Redis != "" {
		cfg.RedisAddr = flags.Redis
	}
	if flags.Headful {
		cfg.Headless = false
	}
	if flags.Debug {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func newLogger(debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "b3crawl",
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger.With("run", uuid.NewString())
}

func crawlerConfig(cfg config.Configuration) crawler.Configuration {
	return crawler.Configuration{
		IndexURL:         cfg.IndexURL,
		IndexFrameID:     cfg.IndexFrameID,
		LetterClass:      cfg.LetterClass,
		BulletClass:      cfg.BulletClass,
		ProfileFrameID:   cfg.ProfileFrameID,
		CodeClass:        cfg.CodeClass,
		IndexTimeout:     cfg.IndexTimeout,
		ProfileTimeout:   cfg.ProfileTimeout,
		SettleTimeout:    cfg.SettleTimeout,
		SettlePoll:       cfg.SettlePoll,
		MaxIndexAttempts: cfg.MaxIndexAttempts,
		BackoffBase:      cfg.BackoffBase,
		BackoffMax:       cfg.BackoffMax,
		Letters:          cfg.Letters,
	}
}

func run(flags CLIFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Debug)
	logger.Debug("configuration", "browser", cfg.Browser, "format", cfg.Format, "output", cfg.OutputDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []crawler.Option{
		crawler.WithLogger(logger),
		crawler.WithProgress(progress.New(os.Stderr)),
	}
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cfg.RedisAddr, cfg.CacheTTL)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("code cache disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			opts = append(opts, crawler.WithCache(rc))
		}
	}

	nav, err := browser.New(browser.Options{
		Browser:   cfg.Browser,
		ExecPath:  cfg.DriverPath,
		Headless:  cfg.Headless,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	c := crawler.New(crawlerConfig(cfg), nav, opts...)
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("browser did not shut down cleanly", "err", err)
		}
	}()

	d, err := gather(ctx, c, cfg)
	if err != nil {
		return err
	}

	_, err = c.Assemble(d, writer.New(cfg.OutputDir, cfg.Format, logger))
	return err
}

// gather builds the dataset from the index, or completes a previously written one
func gather(ctx context.Context, c *crawler.Crawler, cfg config.Configuration) (*types.Dataset, error) {
	if cfg.Input != "" {
		d, err := writer.LoadCSV(cfg.Input)
		if err != nil {
			return nil, err
		}
		if cfg.SkipCodes {
			return d, nil
		}
		return d, c.Complete(ctx, d)
	}

	if cfg.SkipCodes {
		return c.Traverse(ctx)
	}
	return c.Collect(ctx)
}
