package middleware

import (
	"net/http"
	"strings"
	"testing"
)

func TestRedactor_Scrub(t *testing.T) {
	r := newRedactor(RedactOptions{})
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"page=2", "page=2"},
		{"peer=3f1c2a9e-7b4d-4c1a-9e2f-0a1b2c3d4e5f", "peer=[REDACTED:id]"},
		{"mail=jane.doe@example.com", "mail=[REDACTED:email]"},
		{"call 212-555-1212", "call [REDACTED:phone]"},
	}
	for _, tc := range cases {
		if got := r.scrub(tc.in); got != tc.want {
			t.Fatalf("scrub(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactor_Headers(t *testing.T) {
	r := newRedactor(RedactOptions{MaskHeaders: []string{" x-session ", ""}})
	h := http.Header{}
	h.Set("Authorization", "Bearer t")
	h.Set("Cookie", "sid=1")
	h.Set("X-Session", "abc")
	h.Add("X-Forwarded-For", "1.1.1.1")
	h.Add("X-Forwarded-For", "jane@example.com")

	got := r.headers(h)
	for _, k := range []string{"Authorization", "Cookie", "X-Session"} {
		if got[k] != "[REDACTED]" {
			t.Fatalf("%s not masked: %q", k, got[k])
		}
	}
	if v := got["X-Forwarded-For"]; !strings.HasPrefix(v, "1.1.1.1, ") || !strings.Contains(v, "[REDACTED:email]") {
		t.Fatalf("multi-value header = %q", v)
	}
}
