package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"b3crawl/internal/browser"
	"b3crawl/internal/grouper"
	"b3crawl/internal/queue"
	"b3crawl/internal/types"
)

// settleRounds is how many consecutive polls must see the same anchor count
const settleRounds = 2

// Traverse walks every starting letter of the index and returns the
// companies found, in discovery order, without trading codes.
func (c *Crawler) Traverse(ctx context.Context) (*types.Dataset, error) {
	letters, err := c.startingLetters(ctx)
	if err != nil {
		return nil, err
	}
	letters.Keep(c.config.Letters)
	c.logger.Debug("starting letters", "count", letters.Len())

	d := &types.Dataset{}
	c.progress.Begin("Getting Initial Data", letters.Len())
	defer c.progress.End()

	for !letters.IsEmpty() {
		letter, _ := letters.Next()

		records, err := c.harvestLetter(ctx, letter)
		if err != nil {
			return d, fmt.Errorf("letter %s: %w", letter, err)
		}
		d.Append(records...)

		c.logger.Debug("letter done", "letter", letter, "companies", len(records))
		c.progress.Step("Starting " + letter)
	}

	return d, nil
}

// startingLetters reads the letters offered by the index frame
func (c *Crawler) startingLetters(ctx context.Context) (*queue.Queue, error) {
	q := queue.New()
	err := c.onIndex(ctx, "starting letters", func(ctx context.Context) error {
		els, err := c.nav.FindElements(ctx, browser.Class(c.config.LetterClass))
		if err != nil {
			return err
		}
		for _, el := range els {
			q.Add(el.Text())
		}
		return nil
	})
	return q, err
}

// onIndex opens the index frame and runs fn inside it. A timeout in either
// step reloads the index and tries again, up to MaxIndexAttempts times.
func (c *Crawler) onIndex(ctx context.Context, step string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxIndexAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, Backoff(attempt-2, c.config.BackoffBase, c.config.BackoffMax)); err != nil {
				return err
			}
		}

		err := c.enterIndex(ctx)
		if err == nil {
			err = fn(ctx)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, browser.ErrTimeout) {
			return err
		}

		lastErr = err
		c.logger.Error("B3 site is not responding", "step", step, "attempt", attempt, "max", c.config.MaxIndexAttempts, "err", err)
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %w", ErrIndexUnreachable, step, c.config.MaxIndexAttempts, lastErr)
}

func (c *Crawler) enterIndex(ctx context.Context) error {
	if err := c.nav.Navigate(ctx, c.config.IndexURL); err != nil {
		return err
	}

	frame, err := c.nav.WaitForPresence(ctx, browser.ID(c.config.IndexFrameID), c.config.IndexTimeout)
	if err != nil {
		return err
	}
	return c.nav.SwitchIntoFrame(ctx, frame)
}

// harvestLetter selects letter in the index and turns the listed anchors into records
func (c *Crawler) harvestLetter(ctx context.Context, letter string) ([]*types.CompanyRecord, error) {
	baseline := -1
	err := c.onIndex(ctx, "select "+letter, func(ctx context.Context) error {
		link, err := c.nav.WaitForPresence(ctx, browser.LinkText(letter), c.config.IndexTimeout)
		if err != nil {
			return err
		}

		baseline = -1
		if before, err := c.nav.FindElements(ctx, browser.Tag("a")); err == nil {
			baseline = len(before)
		}
		return c.nav.Click(ctx, link)
	})
	if err != nil {
		return nil, err
	}

	anchors, err := c.settle(ctx, baseline)
	if err != nil {
		return nil, err
	}

	records := c.pairRecords(letter, anchors)

	if err := c.nav.Back(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// settle polls the anchors until their count stops changing and returns the
// last query. The click returns before the frame reloads, so a page still
// showing baseline anchors and no companies is not taken as settled. Query
// errors while the frame reloads are retried. When SettleTimeout passes
// first, whatever was last listed is used.
func (c *Crawler) settle(ctx context.Context, baseline int) ([]browser.Element, error) {
	deadline := time.Now().Add(c.config.SettleTimeout)
	var (
		anchors []browser.Element
		lastErr error
		queried bool
	)
	last, stable := -1, 0

	for {
		found, err := c.nav.FindElements(ctx, browser.Tag("a"))
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug("anchor query failed", "err", err)
			lastErr = err
			last, stable = -1, 0
		default:
			anchors, queried = found, true
			if len(found) == last {
				stable++
			} else {
				last, stable = len(found), 0
			}
			changed := baseline >= 0 && len(found) > 0 && len(found) != baseline
			if stable >= settleRounds && (changed || len(c.companyAnchors(found)) > 0) {
				return found, nil
			}
		}

		if time.Now().After(deadline) {
			if !queried {
				return nil, fmt.Errorf("company list: %w", lastErr)
			}
			c.logger.Warn("company list did not settle", "anchors", len(anchors), "timeout", c.config.SettleTimeout)
			return anchors, nil
		}

		if err := c.sleep(ctx, c.config.SettlePoll); err != nil {
			return nil, err
		}
	}
}

// companyAnchors drops bullets and letter links
func (c *Crawler) companyAnchors(anchors []browser.Element) []browser.Element {
	companies := make([]browser.Element, 0, len(anchors))
	for _, a := range anchors {
		if browser.HasClass(a, c.config.BulletClass) || browser.HasClass(a, c.config.LetterClass) {
			continue
		}
		companies = append(companies, a)
	}
	return companies
}

// pairRecords groups company anchors in (corporate name, trading name) pairs.
// Bullets and letter links are skipped, and a trailing unpaired anchor yields no record.
func (c *Crawler) pairRecords(letter string, anchors []browser.Element) []*types.CompanyRecord {
	var records []*types.CompanyRecord
	for name, trading := range grouper.Pairs(slices.Values(c.companyAnchors(anchors)), nil) {
		if name == nil || trading == nil {
			c.logger.Warn("unpaired company anchor", "letter", letter)
			continue
		}

		overview, _ := name.Attr("href")
		summary, _ := trading.Attr("href")
		r, err := types.NewCompanyRecord(name.Text(), trading.Text(), letter, overview, summary)
		if err != nil {
			c.logger.Warn("skipping company", "letter", letter, "err", err)
			continue
		}

		c.logger.Debug("company", "letter", letter, "name", r.TradingName)
		records = append(records, r)
	}
	return records
}
