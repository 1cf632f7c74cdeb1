package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsProtected(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://apibay.org/q.php?q=test", true},
		{"https://api.apibay.org/q.php", true},
		{"https://eztvx.to/api/get-torrents", true},
		{"https://yts.mx/api/v2/list_movies.json", true},
		{"https://torrentio.strem.fun/stream/movie/tt1.json", false},
		{"https://v3-cinemeta.strem.io/meta/movie/tt1.json", false},
		{"https://notapibay.org/q.php", false},
		{"://bad url", false},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			if got := IsProtected(tc.url); got != tc.want {
				t.Fatalf("IsProtected(%q) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}
}

func TestLooksLikeChallenge(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"json object", `{"ok":true}`, false},
		{"json array", `[{"id":"1"}]`, false},
		{"json with leading space", "  {\"ok\":true}", false},
		{"challenge title", "<html><title>Just a moment...</title></html>", true},
		{"cloudflare footer", "<html>checking your browser... cloudflare</html>", true},
		{"plain html", "<html><body>hello</body></html>", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := looksLikeChallenge([]byte(tc.body)); got != tc.want {
				t.Fatalf("looksLikeChallenge = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetJSONOpenHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua == browserUserAgent {
			t.Error("open host should not receive the browser profile")
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(slog.New(slog.DiscardHandler), nil)
	body, err := c.GetJSON(context.Background(), srv.URL+"/data.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("body = %q", body)
	}
}

func TestGetJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(slog.New(slog.DiscardHandler), nil)
	if _, err := c.GetJSON(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error on 403")
	}
}
