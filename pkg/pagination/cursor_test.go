package pagination

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncodeDecodeCursor_RoundTrip(t *testing.T) {
	c := Cursor{
		V:   1,
		Did: "ds-123",
		P:   "/data/input.csv",
		U:   UnitGroups,
		Off: 25,
		Ps:  25,
		Oh:  "abcd",
	}
	tok, err := EncodeCursor(c)
	if err != nil {
		t.Fatalf("EncodeCursor error: %v", err)
	}
	// token should be url-safe base64 (no '+', '/', '=')
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token contains non-url-safe chars: %q", tok)
	}
	out, err := DecodeCursor(tok)
	if err != nil {
		t.Fatalf("DecodeCursor error: %v", err)
	}
	if out.Did != c.Did || out.P != c.P || out.U != c.U || out.Off != c.Off || out.Ps != c.Ps || out.Oh != c.Oh {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", out, c)
	}
	if out.Iat == 0 {
		t.Fatalf("expected issued-at to be defaulted")
	}
}

func TestDecodeCursor_PathOnly(t *testing.T) {
	tok := mustB64(`{"v":1,"p":"/data/in.csv","u":"groups","off":0,"ps":10}`)
	c, err := DecodeCursor(tok)
	if err != nil {
		t.Fatalf("DecodeCursor error: %v", err)
	}
	if c.Did != "" || c.P != "/data/in.csv" {
		t.Fatalf("unexpected cursor %+v", c)
	}
}

func TestDecodeCursor_Invalid(t *testing.T) {
	cases := []string{
		"",    // empty
		"!!!", // not base64
		base64.RawURLEncoding.EncodeToString([]byte("not-json")),
		// missing required fields
		mustB64(`{"v":1}`),
		mustB64(`{"v":1,"did":"","p":"","u":"groups","off":0,"ps":10}`),
		mustB64(`{"v":1,"did":"x","u":"cells","off":0,"ps":10}`),
		mustB64(`{"v":1,"did":"x","u":"groups","off":-1,"ps":10}`),
		mustB64(`{"v":1,"did":"x","u":"rows","off":0,"ps":0}`),
	}
	for i, tok := range cases {
		if _, err := DecodeCursor(tok); err == nil {
			t.Fatalf("case %d: expected error for token %q", i, tok)
		}
	}
}

func TestHashOptions_Stable(t *testing.T) {
	type opts struct {
		Windows []int
		Profile string
	}
	a := HashOptions(opts{Windows: []int{4}, Profile: "antitrust"})
	b := HashOptions(opts{Windows: []int{4}, Profile: "antitrust"})
	c := HashOptions(opts{Windows: []int{3, 4}, Profile: "antitrust"})
	if a == "" || a != b {
		t.Fatalf("expected stable non-empty hash, got %q and %q", a, b)
	}
	if a == c {
		t.Fatalf("expected different options to hash differently")
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %d", len(a))
	}
}

func TestNextOffset(t *testing.T) {
	if got := NextOffset(-5, 3); got != 3 {
		t.Fatalf("NextOffset(-5,3)=%d", got)
	}
	if got := NextOffset(10, 0); got != 10 {
		t.Fatalf("NextOffset(10,0)=%d", got)
	}
	if got := NextOffset(10, 5); got != 15 {
		t.Fatalf("NextOffset(10,5)=%d", got)
	}
}

func FuzzDecodeCursor(f *testing.F) {
	seeds := []string{
		"", "abc", mustB64(`{"v":1}`), mustB64(`{"did":"x"}`),
		mustB64(`{"v":1,"did":"ds","u":"groups","off":0,"ps":1}`),
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, token string) {
		_, _ = DecodeCursor(token)
	})
}

func mustB64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
