package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
)

// HTTPNavigator fetches pages without a browser and queries them with
// goquery. It serves static mirrors of the exchange site and tests. Documents
// never change after loading, so a missing element times out immediately.
type HTTPNavigator struct {
	client    *http.Client
	userAgent string
	logger    *log.Logger
	history   []string
	doc       *goquery.Document
	docURL    *url.URL
	closed    bool
}

// NewHTTP creates a navigator using opts.Client, or a client with a 30s timeout
func NewHTTP(opts Options) *HTTPNavigator {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPNavigator{
		client:    client,
		userAgent: opts.UserAgent,
		logger:    opts.logger(),
	}
}

func (h *HTTPNavigator) load(ctx context.Context, rawURL string) error {
	if h.closed {
		return ErrClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}

	h.doc = doc
	h.docURL = resp.Request.URL
	return nil
}

func (h *HTTPNavigator) Navigate(ctx context.Context, rawURL string) error {
	h.logger.Debug("navigate", "url", rawURL)
	if err := h.load(ctx, rawURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", rawURL, err)
	}
	h.history = append(h.history, h.docURL.String())
	return nil
}

func (h *HTTPNavigator) WaitForPresence(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	els, err := h.FindElements(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTimeout, sel)
	}
	return els[0], nil
}

// SwitchIntoFrame loads the frame document as the current page
func (h *HTTPNavigator) SwitchIntoFrame(ctx context.Context, frame Element) error {
	src, ok := frame.Attr("src")
	if !ok || src == "" {
		return fmt.Errorf("switch into frame: element has no src")
	}
	return h.Navigate(ctx, src)
}

func (h *HTTPNavigator) FindElements(ctx context.Context, sel Selector) ([]Element, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.doc == nil {
		return nil, nil
	}

	var snaps []snapshot
	h.doc.Find(sel.CSS()).Each(func(_ int, s *goquery.Selection) {
		attrs := make(map[string]string)
		for _, a := range s.Nodes[0].Attr {
			attrs[a.Key] = a.Val
		}
		for _, key := range []string{"href", "src"} {
			if v, ok := attrs[key]; ok {
				attrs[key] = h.resolve(v)
			}
		}
		snaps = append(snaps, snapshot{Text: s.Text(), Attrs: attrs})
	})

	return sel.collect(snaps), nil
}

func (h *HTTPNavigator) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || h.docURL == nil {
		return ref
	}
	return h.docURL.ResolveReference(u).String()
}

// Click follows the element's link
func (h *HTTPNavigator) Click(ctx context.Context, el Element) error {
	href, ok := el.Attr("href")
	if !ok || href == "" {
		return fmt.Errorf("click %q: element has no href", el.Text())
	}
	return h.Navigate(ctx, href)
}

// Back reloads the previous document. On the first page it does nothing.
func (h *HTTPNavigator) Back(ctx context.Context) error {
	if len(h.history) < 2 {
		return nil
	}

	h.history = h.history[:len(h.history)-1]
	prev := h.history[len(h.history)-1]
	if err := h.load(ctx, prev); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	return nil
}

func (h *HTTPNavigator) Close() error {
	h.closed = true
	h.doc = nil
	return nil
}
