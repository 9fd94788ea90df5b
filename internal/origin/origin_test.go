package origin

import "testing"

func TestNormalize(t *testing.T) {
	t.Run("normalizes scheme and host", func(t *testing.T) {
		normalized, ok := Normalize("HTTPS://Example.COM:8443")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "https://example.com:8443" {
			t.Fatalf("normalized=%q, want %q", normalized, "https://example.com:8443")
		}
	})

	t.Run("allows trailing slash", func(t *testing.T) {
		normalized, ok := Normalize("http://localhost:5173/")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "http://localhost:5173" {
			t.Fatalf("normalized=%q, want %q", normalized, "http://localhost:5173")
		}
	})

	t.Run("allows null origin", func(t *testing.T) {
		normalized, ok := Normalize("null")
		if !ok || normalized != "null" {
			t.Fatalf("normalized=%q ok=%v, want %q", normalized, ok, "null")
		}
	})

	t.Run("rejects scheme other than http/https", func(t *testing.T) {
		if _, ok := Normalize("ftp://example.com"); ok {
			t.Fatalf("expected ok=false")
		}
	})

	t.Run("rejects path, query, credentials, fragment", func(t *testing.T) {
		cases := []string{
			"https://example.com/path",
			"https://example.com/?q=1",
			"https://user@example.com",
			"https://example.com/#frag",
		}
		for _, c := range cases {
			if _, ok := Normalize(c); ok {
				t.Fatalf("expected ok=false for %q", c)
			}
		}
	})
}

func TestIsAllowed(t *testing.T) {
	t.Run("empty allowlist admits any real origin", func(t *testing.T) {
		if !IsAllowed("https://app.example.com", nil) {
			t.Fatalf("expected empty allowlist to admit origin")
		}
		if IsAllowed("null", nil) {
			t.Fatalf("expected null origin to be rejected by empty allowlist")
		}
	})

	t.Run("allows star", func(t *testing.T) {
		if !IsAllowed("https://app.example.com", []string{"*"}) {
			t.Fatalf("expected * to allow any origin")
		}
	})

	t.Run("allows explicit origin only", func(t *testing.T) {
		allowlist := []string{"https://app.example.com"}
		if !IsAllowed("https://app.example.com", allowlist) {
			t.Fatalf("expected explicit origin to be allowed")
		}
		if IsAllowed("https://other.example.com", allowlist) {
			t.Fatalf("expected non-matching origin to be rejected")
		}
	})

	t.Run("allows null origin when configured", func(t *testing.T) {
		if !IsAllowed("null", []string{"null"}) {
			t.Fatalf("expected null origin to be allowed when configured")
		}
	})
}

func TestHeaderAllowed(t *testing.T) {
	cases := []struct {
		origin    string
		allowlist []string
		want      bool
	}{
		{"", nil, true},
		{"https://a.example.com", nil, true},
		{"null", nil, false},
		{"null", []string{"null"}, true},
		{"https://a.example.com", []string{"https://a.example.com"}, true},
		{"HTTPS://A.Example.Com", []string{"https://a.example.com"}, true},
		{"https://b.example.com", []string{"https://a.example.com"}, false},
		{"https://b.example.com", []string{"*"}, true},
		{"not a url", []string{"*"}, false},
	}
	for _, tc := range cases {
		if got := HeaderAllowed(tc.origin, tc.allowlist); got != tc.want {
			t.Fatalf("HeaderAllowed(%q, %v)=%v, want %v", tc.origin, tc.allowlist, got, tc.want)
		}
	}
}
