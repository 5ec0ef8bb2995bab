package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// snapshot is the JSON shape every backend reads an element into
type snapshot struct {
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs"`
}

// node is the Element implementation shared by the backends. It keeps the
// query and position so the live element can be found again for clicks.
type node struct {
	css   string
	index int
	text  string
	attrs map[string]string
}

func (n *node) Text() string { return n.text }

func (n *node) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

func asNode(el Element) (*node, error) {
	n, ok := el.(*node)
	if !ok || n == nil {
		return nil, ErrForeignElement
	}
	return n, nil
}

// snapshotFn maps a list of elements to snapshots, resolving href and src to absolute URLs
const snapshotFn = `els => els.map(el => {
	const attrs = {};
	for (const a of el.attributes) {
		attrs[a.name] = a.value;
	}
	if (typeof el.href === 'string' && el.href) attrs.href = el.href;
	if (typeof el.src === 'string' && el.src) attrs.src = el.src;
	return {text: (el.innerText || el.textContent || ''), attrs: attrs};
})`

func snapshotScript(css string) string {
	return fmt.Sprintf(`(%s)(Array.from(document.querySelectorAll(%q)))`, snapshotFn, css)
}

func clickScript(css string, index int) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelectorAll(%q)[%d];
		if (!el) return false;
		el.click();
		return true;
	})()`, css, index)
}

// collect turns snapshots of sel.CSS() into elements, applying link text matching
func (s Selector) collect(snaps []snapshot) []Element {
	css := s.CSS()
	els := make([]Element, 0, len(snaps))
	for i, sn := range snaps {
		text := normalizeSpace(sn.Text)
		if s.By == ByLinkText && text != s.Value {
			continue
		}
		attrs := sn.Attrs
		if attrs == nil {
			attrs = map[string]string{}
		}
		els = append(els, &node{css: css, index: i, text: text, attrs: attrs})
	}
	return els
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// poll re-runs find until it yields an element or timeout elapses. Query
// errors while polling are retried; the page may be mid-navigation.
func poll(ctx context.Context, sel Selector, timeout, interval time.Duration, find func(context.Context, Selector) ([]Element, error)) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		els, err := find(waitCtx, sel)
		if err == nil && len(els) > 0 {
			return els[0], nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %s after %s (last error: %v)", ErrTimeout, sel, timeout, lastErr)
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, sel, timeout)
		case <-ticker.C:
		}
	}
}
