package util

import (
	"net/mail"
	"strings"
)

// NormalizeSender returns the lowercased address of a From header with any
// +tag removed from the local part, e.g.
// `Freelancer <NoReply+jobs@Freelancer.com>` -> "noreply@freelancer.com".
// Dots are kept. Unparsable headers yield "".
func NormalizeSender(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		addr = firstAddress(from)
		if addr == nil {
			return ""
		}
	}

	email := strings.ToLower(strings.TrimSpace(addr.Address))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus > -1 {
		local = local[:plus]
	}
	return local + "@" + domain
}

// firstAddress picks the first parsable entry of a comma-separated header.
func firstAddress(header string) *mail.Address {
	for _, p := range strings.Split(header, ",") {
		if a, err := mail.ParseAddress(strings.TrimSpace(p)); err == nil {
			return a
		}
	}
	return nil
}

// SenderDomain returns the domain of a normalized address, or "".
func SenderDomain(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return ""
	}
	return addr[at+1:]
}

// QueryDomains returns the domains named by from: predicates of a Gmail
// search query, lowercased and in order.
func QueryDomains(query []string) []string {
	var out []string
	for _, q := range query {
		v, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(q)), "from:")
		if !ok || v == "" {
			continue
		}
		if at := strings.LastIndexByte(v, '@'); at >= 0 {
			v = v[at+1:]
		}
		out = append(out, v)
	}
	return out
}

// MatchesDomain reports whether domain equals one of want or is a subdomain
// of it.
func MatchesDomain(domain string, want []string) bool {
	for _, w := range want {
		if domain == w || strings.HasSuffix(domain, "."+w) {
			return true
		}
	}
	return false
}
