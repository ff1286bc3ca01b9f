package extract

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"gigmail/internal/model"
)

// Freelancer notification layout: every listing is a table row carrying three
// anchors (the listing itself, then two call-to-action links), and the
// listing title sits in a span inside the first anchor.
var (
	freelancerMarkers = []string{
		"https://www.freelancer.com/projects/",
		"https://www.freelancer.com/contest/",
	}
	freelancerBoilerplate = []string{"see more", "bid now", "enter now"}
)

const (
	anchorSelector   = "tr > td > a"
	titleSelector    = "tr > td > a > span"
	anchorsPerRecord = 3
)

// Anchors holds what the HTML body offers, in document order.
type Anchors struct {
	Hrefs []string
	Texts []string
}

// CollectAnchors parses body and gathers anchor hrefs found in table cells
// and the text of spans directly inside those anchors.
func CollectAnchors(body []byte) (Anchors, error) {
	var a Anchors
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return a, fmt.Errorf("parse html: %w", err)
	}
	doc.Find(anchorSelector).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			a.Hrefs = append(a.Hrefs, href)
		}
	})
	doc.Find(titleSelector).Each(func(_ int, s *goquery.Selection) {
		a.Texts = append(a.Texts, s.Text())
	})
	return a, nil
}

type freelancer struct {
	opts Options
}

func (f *freelancer) ExtractRows(d *model.MessageDetail) ([]model.ListingRow, error) {
	date := FormatTimestamp(d.InternalDate, f.opts.Location)
	anchors, err := CollectAnchors(HTMLBody(d.Parts))
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", d.ID, err)
	}

	urls := EveryNth(FilterURLs(anchors.Hrefs, freelancerMarkers), anchorsPerRecord)
	titles := FilterTitles(anchors.Texts, freelancerBoilerplate)
	pairs, short := Align(titles, urls)
	f.opts.Log.Debug("parse_html", "message", d.ID, "url", len(urls), "title", len(titles))

	if short {
		if f.opts.Strict {
			return nil, &MisalignmentError{MessageID: d.ID, Titles: len(titles), URLs: len(urls)}
		}
		f.opts.Log.Warn("fewer titles than listing urls, extra urls dropped",
			"message", d.ID, "titles", len(titles), "urls", len(urls))
	}

	rows := make([]model.ListingRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, model.ListingRow{Date: date, Title: p.Title, URL: p.URL})
	}
	return rows, nil
}
