package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidRecord is returned when a CompanyRecord is built from incomplete data
var ErrInvalidRecord = errors.New("invalid company record")

// CodeSeparator joins multiple trading codes of one company
const CodeSeparator = ";"

// LinkSeparator joins the links of one company in tabular output
const LinkSeparator = " | "

// CompanyRecord represents one company harvested from the listed companies index
type CompanyRecord struct {
	CorporateName  string
	TradingName    string
	StartingLetter string
	OverviewLink   string
	SummaryLink    string
	Code           string
}

// NewCompanyRecord builds a record from the two anchors of an index pair.
// At least one link must be present and the letter must be a single character.
func NewCompanyRecord(corporateName, tradingName, letter, overviewLink, summaryLink string) (*CompanyRecord, error) {
	if utf8.RuneCountInString(letter) != 1 {
		return nil, fmt.Errorf("%w: starting letter %q is not a single character", ErrInvalidRecord, letter)
	}

	overviewLink = strings.TrimSpace(overviewLink)
	summaryLink = strings.TrimSpace(summaryLink)
	if overviewLink == "" {
		overviewLink, summaryLink = summaryLink, ""
	}
	if overviewLink == "" {
		return nil, fmt.Errorf("%w: %q has no links", ErrInvalidRecord, corporateName)
	}

	return &CompanyRecord{
		CorporateName:  corporateName,
		TradingName:    tradingName,
		StartingLetter: letter,
		OverviewLink:   overviewLink,
		SummaryLink:    summaryLink,
	}, nil
}

// Links returns the distinct links of the record, overview first
func (r *CompanyRecord) Links() []string {
	if r.SummaryLink == "" || r.SummaryLink == r.OverviewLink {
		return []string{r.OverviewLink}
	}
	return []string{r.OverviewLink, r.SummaryLink}
}

// ProfileURL is the link visited to extract trading codes
func (r *CompanyRecord) ProfileURL() string {
	return r.OverviewLink
}

// HasCode reports whether trading codes were extracted
func (r *CompanyRecord) HasCode() bool {
	return r.Code != ""
}

// Codes splits the joined code field
func (r *CompanyRecord) Codes() []string {
	if r.Code == "" {
		return nil
	}
	return strings.Split(r.Code, CodeSeparator)
}

// SetCodes joins the non-empty codes. An empty result leaves the code absent.
func (r *CompanyRecord) SetCodes(codes []string) {
	kept := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	r.Code = strings.Join(kept, CodeSeparator)
}

// Dataset holds records in discovery order
type Dataset struct {
	Records []*CompanyRecord
}

// Append adds records keeping their order
func (d *Dataset) Append(records ...*CompanyRecord) {
	d.Records = append(d.Records, records...)
}

// Len returns the number of records
func (d *Dataset) Len() int {
	return len(d.Records)
}

// WithoutCode returns the records still missing trading codes
func (d *Dataset) WithoutCode() []*CompanyRecord {
	var missing []*CompanyRecord
	for _, r := range d.Records {
		if !r.HasCode() {
			missing = append(missing, r)
		}
	}
	return missing
}
