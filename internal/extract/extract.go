// Package extract turns fetched notification messages into listing rows.
//
// Each sender family is one Strategy. A strategy pulls the anchors out of the
// message's HTML body and pairs listing titles with listing URLs.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gigmail/internal/model"
)

// Strategy selects the extraction rules for a sender family.
type Strategy int

const (
	StrategyFreelancer Strategy = iota + 1
)

func (s Strategy) String() string {
	switch s {
	case StrategyFreelancer:
		return "freelancer"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a site name to its strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "freelancer":
		return StrategyFreelancer, nil
	default:
		return 0, fmt.Errorf("no extraction strategy for site %q", name)
	}
}

// Extractor produces the rows of one message.
type Extractor interface {
	ExtractRows(d *model.MessageDetail) ([]model.ListingRow, error)
}

// Options are shared by every strategy.
type Options struct {
	// Location renders message timestamps. Nil means time.Local.
	Location *time.Location
	// Strict turns a title shortfall into a MisalignmentError instead of
	// a logged warning.
	Strict bool
	Log    *slog.Logger
}

// New returns the extractor for s.
func New(s Strategy, opts Options) (Extractor, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Log == nil {
		return nil, fmt.Errorf("extract: logger is required")
	}
	switch s {
	case StrategyFreelancer:
		return &freelancer{opts: opts}, nil
	default:
		return nil, fmt.Errorf("extract: unknown %v", s)
	}
}

// MisalignmentError reports a message whose filtered titles are fewer than
// its listing URLs.
type MisalignmentError struct {
	MessageID string
	Titles    int
	URLs      int
}

func (e *MisalignmentError) Error() string {
	return fmt.Sprintf("message %s: %d titles for %d listing urls", e.MessageID, e.Titles, e.URLs)
}

// TimestampLayout is the display format of ListingRow.Date.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders epoch milliseconds in loc.
func FormatTimestamp(ms int64, loc *time.Location) string {
	return time.UnixMilli(ms).In(loc).Format(TimestampLayout)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// HTMLBody returns the first text/html part, without a leading BOM. A message
// with no HTML part has an empty body.
func HTMLBody(parts []model.BodyPart) []byte {
	for _, p := range parts {
		if strings.EqualFold(p.MimeType, "text/html") {
			return bytes.TrimPrefix(p.Data, utf8BOM)
		}
	}
	return nil
}
