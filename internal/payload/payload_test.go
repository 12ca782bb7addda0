package payload

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		code  string
		part  int
		token string
	}{
		{name: "plain", code: "dune", part: 1, token: ""},
		{name: "with token", code: "dune", part: 3, token: "Zm9vYmFyYmF6cXV4MTIzNA"},
		{name: "underscored code", code: "the_matrix", part: 12, token: "a-b_c"},
		{name: "spaced code", code: "dune part two", part: 2, token: "tok"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			encoded := Encode(testCase.code, testCase.part, testCase.token)
			if strings.ContainsAny(encoded, "=+/") {
				t.Fatalf("expected url-safe unpadded payload, got %q", encoded)
			}
			code, part, token := Decode(encoded)
			if code != testCase.code || part != testCase.part || token != testCase.token {
				t.Fatalf("round trip mismatch: got (%q, %d, %q)", code, part, token)
			}
		})
	}
}

func TestDecodeReturnsSentinelForMalformedInput(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"not base64 at all!",
		"%%%%",
		base64.RawURLEncoding.EncodeToString([]byte("no-delimiter-here")),
		base64.RawURLEncoding.EncodeToString([]byte{0xff, 0xfe, '|', '1'}),
		"connect",
	}

	for _, input := range inputs {
		code, part, token := Decode(input)
		if code != "" || part != DefaultPart || token != "" {
			t.Fatalf("expected sentinel for %q, got (%q, %d, %q)", input, code, part, token)
		}
	}
}

func TestDecodeDefaultsMissingSegments(t *testing.T) {
	encoded := base64.RawURLEncoding.EncodeToString([]byte("dune|"))
	code, part, token := Decode(encoded)
	if code != "dune" || part != DefaultPart || token != "" {
		t.Fatalf("unexpected decode result (%q, %d, %q)", code, part, token)
	}

	encoded = base64.RawURLEncoding.EncodeToString([]byte("dune|two|tok"))
	code, part, token = Decode(encoded)
	if code != "dune" || part != DefaultPart || token != "tok" {
		t.Fatalf("expected non-numeric part to default, got (%q, %d, %q)", code, part, token)
	}

	encoded = base64.RawURLEncoding.EncodeToString([]byte("dune|0|tok"))
	if _, part, _ = Decode(encoded); part != DefaultPart {
		t.Fatalf("expected zero part to default, got %d", part)
	}
}

func TestDecodeAcceptsPaddedLegacyPayloads(t *testing.T) {
	legacy := base64.URLEncoding.EncodeToString([]byte("dune|2|abc"))
	if !strings.HasSuffix(legacy, "=") {
		t.Fatalf("fixture should carry padding, got %q", legacy)
	}
	code, part, token := Decode(legacy)
	if code != "dune" || part != 2 || token != "abc" {
		t.Fatalf("unexpected legacy decode (%q, %d, %q)", code, part, token)
	}
}

func TestLinkBuildsDeepLink(t *testing.T) {
	link := Link("@MovieBot", "ZHVuZXwxfA")
	if link != "https://t.me/MovieBot?start=ZHVuZXwxfA" {
		t.Fatalf("unexpected link %q", link)
	}
}
