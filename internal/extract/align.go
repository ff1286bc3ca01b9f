package extract

import "strings"

// FilterURLs keeps the hrefs containing any of the markers, in order.
func FilterURLs(hrefs, markers []string) []string {
	var out []string
	for _, h := range hrefs {
		for _, m := range markers {
			if strings.Contains(h, m) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// FilterTitles drops boilerplate labels (case-insensitive) and titles that
// are blank once trimmed. Survivors are trimmed.
func FilterTitles(texts, boilerplate []string) []string {
	var out []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" || isBoilerplate(t, boilerplate) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isBoilerplate(t string, boilerplate []string) bool {
	for _, b := range boilerplate {
		if strings.EqualFold(t, b) {
			return true
		}
	}
	return false
}

// EveryNth keeps the elements at 1-based positions 1, 1+n, 1+2n, ...
func EveryNth(urls []string, n int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, (len(urls)+n-1)/n)
	for i := 0; i < len(urls); i += n {
		out = append(out, urls[i])
	}
	return out
}

// Pair is one aligned title and URL.
type Pair struct {
	Title string
	URL   string
}

// Align pairs titles and urls by position, stopping at the shorter list.
// short reports that titles ran out before urls did.
func Align(titles, urls []string) (pairs []Pair, short bool) {
	n := len(urls)
	if len(titles) < n {
		n = len(titles)
		short = true
	}
	pairs = make([]Pair, n)
	for i := 0; i < n; i++ {
		pairs[i] = Pair{Title: titles[i], URL: urls[i]}
	}
	return pairs, short
}
