package crawler

import (
	"context"
	"errors"
	"strings"

	"b3crawl/internal/browser"
	"b3crawl/internal/types"
)

// ExtractCodes fills the code of each record in turn
func (c *Crawler) ExtractCodes(ctx context.Context, records []*types.CompanyRecord) error {
	c.progress.Begin("Getting Codes", len(records))
	defer c.progress.End()

	for _, r := range records {
		if _, err := c.ExtractCode(ctx, r); err != nil {
			return err
		}
		c.progress.Step(r.TradingName)
	}
	return nil
}

// ExtractCode visits the company profile and sets the record's trading codes.
// A profile that never loads leaves the code absent and is not an error.
func (c *Crawler) ExtractCode(ctx context.Context, r *types.CompanyRecord) (*types.CompanyRecord, error) {
	url := r.ProfileURL()

	if c.cache != nil {
		codes, ok, err := c.cache.Get(ctx, url)
		if err != nil {
			c.logger.Warn("code cache unavailable", "err", err)
		} else if ok {
			r.SetCodes(strings.Split(codes, types.CodeSeparator))
			return r, nil
		}
	}

	if err := c.nav.Navigate(ctx, url); err != nil {
		return r, err
	}

	frame, err := c.nav.WaitForPresence(ctx, browser.ID(c.config.ProfileFrameID), c.config.ProfileTimeout)
	if errors.Is(err, browser.ErrTimeout) {
		c.logger.Warn("Site is not responding", "company", r.TradingName, "url", url)
		return r, nil
	}
	if err != nil {
		return r, err
	}

	if err := c.nav.SwitchIntoFrame(ctx, frame); err != nil {
		return r, err
	}

	els, err := c.nav.FindElements(ctx, browser.Class(c.config.CodeClass))
	if err != nil {
		return r, err
	}

	texts := make([]string, 0, len(els))
	for _, el := range els {
		texts = append(texts, el.Text())
	}
	r.SetCodes(texts)

	if c.cache != nil && r.HasCode() {
		if err := c.cache.Set(ctx, url, r.Code); err != nil {
			c.logger.Warn("code cache unavailable", "err", err)
		}
	}
	return r, nil
}
