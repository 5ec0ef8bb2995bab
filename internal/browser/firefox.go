package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/playwright-community/playwright-go"
)

// FirefoxNavigator drives Firefox through playwright. Unlike the Chrome
// backend it enters frames natively, so history only holds real navigations.
type FirefoxNavigator struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	page     playwright.Page
	frame    playwright.Frame
	interval time.Duration
	logger   *log.Logger
	closed   bool
}

// NewFirefox starts playwright against an installed Firefox. Browsers are
// never downloaded here.
func NewFirefox(opts Options) (*FirefoxNavigator, error) {
	pw, err := playwright.Run(&playwright.RunOptions{SkipInstallBrowsers: true})
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.ExecPath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecPath)
	}

	browser, err := pw.Firefox.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch firefox: %w", err)
	}

	pageOpts := playwright.BrowserNewPageOptions{}
	if opts.UserAgent != "" {
		pageOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	page, err := browser.NewPage(pageOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("open page: %w", err)
	}

	return &FirefoxNavigator{
		pw:       pw,
		browser:  browser,
		page:     page,
		frame:    page.MainFrame(),
		interval: opts.pollInterval(),
		logger:   opts.logger(),
	}, nil
}

func (f *FirefoxNavigator) ready(ctx context.Context) error {
	if f.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (f *FirefoxNavigator) Navigate(ctx context.Context, url string) error {
	if err := f.ready(ctx); err != nil {
		return err
	}

	f.logger.Debug("navigate", "url", url)
	if _, err := f.page.Goto(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	f.frame = f.page.MainFrame()
	return nil
}

func (f *FirefoxNavigator) WaitForPresence(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	return poll(ctx, sel, timeout, f.interval, f.FindElements)
}

func (f *FirefoxNavigator) handle(n *node) (playwright.ElementHandle, error) {
	handles, err := f.frame.QuerySelectorAll(n.css)
	if err != nil {
		return nil, err
	}
	if n.index >= len(handles) {
		return nil, fmt.Errorf("element %q is gone", n.text)
	}
	return handles[n.index], nil
}

func (f *FirefoxNavigator) SwitchIntoFrame(ctx context.Context, frame Element) error {
	if err := f.ready(ctx); err != nil {
		return err
	}
	n, err := asNode(frame)
	if err != nil {
		return err
	}

	h, err := f.handle(n)
	if err != nil {
		return fmt.Errorf("switch into frame: %w", err)
	}
	content, err := h.ContentFrame()
	if err != nil {
		return fmt.Errorf("switch into frame: %w", err)
	}
	if content == nil {
		return errors.New("switch into frame: element is not a frame")
	}
	f.frame = content
	return nil
}

func (f *FirefoxNavigator) FindElements(ctx context.Context, sel Selector) ([]Element, error) {
	if err := f.ready(ctx); err != nil {
		return nil, err
	}

	raw, err := f.frame.EvalOnSelectorAll(sel.CSS(), snapshotFn)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}

	// playwright hands back generic JSON values
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}
	var snaps []snapshot
	if err := json.Unmarshal(b, &snaps); err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, err)
	}
	return sel.collect(snaps), nil
}

func (f *FirefoxNavigator) Click(ctx context.Context, el Element) error {
	if err := f.ready(ctx); err != nil {
		return err
	}
	n, err := asNode(el)
	if err != nil {
		return err
	}

	h, err := f.handle(n)
	if err != nil {
		return fmt.Errorf("click: %w", err)
	}
	if err := h.Click(); err != nil {
		return fmt.Errorf("click %q: %w", n.text, err)
	}
	return nil
}

func (f *FirefoxNavigator) Back(ctx context.Context) error {
	if err := f.ready(ctx); err != nil {
		return err
	}
	if _, err := f.page.GoBack(); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	f.frame = f.page.MainFrame()
	return nil
}

// Close shuts the browser and the playwright driver down. It is safe to call more than once.
func (f *FirefoxNavigator) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	return errors.Join(f.browser.Close(), f.pw.Stop())
}
