// Package browser drives a web page for the crawler: navigation, bounded
// waits, frame switching, element queries and history. The crawler only
// depends on the Navigator contract; chromedp, playwright and plain HTTP
// backends implement it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrTimeout is returned when an element does not appear within the wait bound
	ErrTimeout = errors.New("timed out waiting for element")
	// ErrClosed is returned by any call made after Close
	ErrClosed = errors.New("navigator is closed")
	// ErrForeignElement is returned when an element from another backend is passed in
	ErrForeignElement = errors.New("element does not belong to this navigator")
	// ErrUnknownBrowser is returned by New for an unsupported backend name
	ErrUnknownBrowser = errors.New("unknown browser")
)

// Supported backend names
const (
	Chrome  = "chrome"
	Firefox = "firefox"
	HTTP    = "http"
)

// DefaultPollInterval is how often waits re-query the page
const DefaultPollInterval = 250 * time.Millisecond

// Element is a snapshot of a DOM element taken when it was queried
type Element interface {
	Text() string
	Attr(name string) (string, bool)
}

// Navigator is the browser capability consumed by the crawler
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	WaitForPresence(ctx context.Context, sel Selector, timeout time.Duration) (Element, error)
	SwitchIntoFrame(ctx context.Context, frame Element) error
	FindElements(ctx context.Context, sel Selector) ([]Element, error)
	Click(ctx context.Context, el Element) error
	Back(ctx context.Context) error
	Close() error
}

// Options configures a navigator backend
type Options struct {
	Browser      string
	ExecPath     string
	Headless     bool
	UserAgent    string
	PollInterval time.Duration
	Logger       *log.Logger
	Client       *http.Client
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

func (o Options) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return DefaultPollInterval
}

// New starts the backend named by opts.Browser
func New(opts Options) (Navigator, error) {
	switch strings.ToLower(opts.Browser) {
	case Chrome, "":
		return NewChrome(opts)
	case Firefox:
		return NewFirefox(opts)
	case HTTP:
		return NewHTTP(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBrowser, opts.Browser)
	}
}

// By is the strategy a Selector uses to locate elements
type By int

const (
	ByID By = iota
	ByClass
	ByTag
	ByLinkText
)

// Selector locates elements in the current document
type Selector struct {
	By    By
	Value string
}

// ID selects the element with the given id
func ID(id string) Selector { return Selector{By: ByID, Value: id} }

// Class selects elements carrying the given class
func Class(class string) Selector { return Selector{By: ByClass, Value: class} }

// Tag selects elements by tag name
func Tag(tag string) Selector { return Selector{By: ByTag, Value: tag} }

// LinkText selects anchors whose visible text equals text
func LinkText(text string) Selector { return Selector{By: ByLinkText, Value: text} }

// CSS returns the query the backends run. Link text is matched afterwards.
func (s Selector) CSS() string {
	switch s.By {
	case ByID:
		return fmt.Sprintf("[id=%q]", s.Value)
	case ByClass:
		return fmt.Sprintf("[class~=%q]", s.Value)
	case ByLinkText:
		return "a"
	default:
		return s.Value
	}
}

func (s Selector) String() string {
	switch s.By {
	case ByID:
		return "id=" + s.Value
	case ByClass:
		return "class=" + s.Value
	case ByLinkText:
		return "link=" + s.Value
	default:
		return "tag=" + s.Value
	}
}

// HasClass reports whether el carries class among its class tokens
func HasClass(el Element, class string) bool {
	classes, ok := el.Attr("class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}
	return false
}
