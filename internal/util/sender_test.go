package util

import (
	"reflect"
	"testing"
)

func TestNormalizeSender(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Freelancer <NoReply@Freelancer.COM>`, "noreply@freelancer.com"},
		{`"Freelancer" <noreply+jobs@freelancer.com>`, "noreply@freelancer.com"},
		{`no.reply+x@EXAMPLE.com`, "no.reply@example.com"},
		{`bad address`, ""},
		{`"A" <not-an-email> , "B" <c@D.com>`, "c@d.com"},
		{``, ""},
	}
	for _, tc := range tests {
		if got := NormalizeSender(tc.in); got != tc.want {
			t.Errorf("NormalizeSender(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestQueryDomains(t *testing.T) {
	got := QueryDomains([]string{"from:freelancer.com", "newer_than:2d", "FROM:alerts@Contests.io", "from:"})
	want := []string{"freelancer.com", "contests.io"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("QueryDomains = %v", got)
	}
}

func TestMatchesDomain(t *testing.T) {
	want := []string{"freelancer.com"}
	cases := map[string]bool{
		"freelancer.com":      true,
		"mail.freelancer.com": true,
		"notfreelancer.com":   false,
		"":                    false,
	}
	for d, exp := range cases {
		if got := MatchesDomain(d, want); got != exp {
			t.Errorf("MatchesDomain(%q) = %v", d, got)
		}
	}
	if SenderDomain("a@b.com") != "b.com" || SenderDomain("nobody") != "" {
		t.Fatal("SenderDomain")
	}
}
