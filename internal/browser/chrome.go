package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeNavigator drives a single Chrome tab through chromedp.
//
// Frames are entered by loading the frame's document into the tab. chromedp
// cannot query into out-of-process (cross-origin) iframes, and the exchange
// serves its index and profile frames from another host.
type ChromeNavigator struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	interval      time.Duration
	logger        *log.Logger
	closed        bool
}

// NewChrome launches Chrome and opens the tab used for the whole run
func NewChrome(opts Options) (*ChromeNavigator, error) {
	logger := opts.logger()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	logf, errorf := chromeLoggers(logger)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logf),
		chromedp.WithErrorf(errorf),
	)

	// Start the browser now so a bad executable fails here and not on first use
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &ChromeNavigator{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		interval:      opts.pollInterval(),
		logger:        logger,
	}, nil
}

// chromeLoggers routes chromedp's chatter to debug and its protocol errors to error
func chromeLoggers(logger *log.Logger) (logf, errorf func(string, ...any)) {
	return logger.Debugf, func(format string, args ...any) {
		logger.Errorf("chromedp: "+format, args...)
	}
}

// run executes actions on the tab, aborting when ctx is done
func (c *ChromeNavigator) run(ctx context.Context, actions ...chromedp.Action) error {
	if c.closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(c.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (c *ChromeNavigator) Navigate(ctx context.Context, url string) error {
	c.logger.Debug("navigate", "url", url)
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (c *ChromeNavigator) WaitForPresence(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	return poll(ctx, sel, timeout, c.interval, c.FindElements)
}

func (c *ChromeNavigator) SwitchIntoFrame(ctx context.Context, frame Element) error {
	src, ok := frame.Attr("src")
	if !ok || src == "" {
		return fmt.Errorf("switch into frame: element has no src")
	}
	return c.Navigate(ctx, src)
}

func (c *ChromeNavigator) FindElements(ctx context.Context, sel Selector) ([]Element, error) {
	var snaps []snapshot
	if err := c.run(ctx, chromedp.Evaluate(snapshotScript(sel.CSS()), &snaps)); err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}
	return sel.collect(snaps), nil
}

func (c *ChromeNavigator) Click(ctx context.Context, el Element) error {
	n, err := asNode(el)
	if err != nil {
		return err
	}

	var clicked bool
	if err := c.run(ctx, chromedp.Evaluate(clickScript(n.css, n.index), &clicked)); err != nil {
		return fmt.Errorf("click %q: %w", n.text, err)
	}
	if !clicked {
		return fmt.Errorf("click %q: element is gone", n.text)
	}
	return nil
}

// Back returns to the previous history entry. On the first entry it does nothing.
func (c *ChromeNavigator) Back(ctx context.Context) error {
	back := chromedp.ActionFunc(func(ctx context.Context) error {
		cur, entries, err := page.GetNavigationHistory().Do(ctx)
		if err != nil {
			return err
		}
		if cur <= 0 || int(cur) >= len(entries) {
			return nil
		}
		return page.NavigateToHistoryEntry(entries[cur-1].ID).Do(ctx)
	})
	if err := c.run(ctx, back); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

// Close shuts the browser down. It is safe to call more than once.
func (c *ChromeNavigator) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := chromedp.Cancel(c.browserCtx)
	c.browserCancel()
	c.allocCancel()
	if err != nil {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}
