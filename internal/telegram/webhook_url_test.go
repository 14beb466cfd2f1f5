package telegram_test

import (
	"testing"

	"github.com/juliuspc/broadcastbot/internal/telegram"
)

func TestValidWebhookURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "https with path", url: "https://example.org/x", want: true},
		{name: "https bare host", url: "https://example.org", want: true},
		{name: "https with port", url: "https://example.org:8443/hook", want: true},
		{name: "www host without scheme", url: "www.example.org/hook", want: true},
		{name: "uppercase scheme", url: "HTTPS://example.org/x", want: true},
		{name: "ftp scheme", url: "ftp://x", want: false},
		{name: "plain http", url: "http://example.org/x", want: false},
		{name: "empty", url: "", want: false},
		{name: "bare hostname", url: "example.org/hook", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := telegram.ValidWebhookURL(tc.url); got != tc.want {
				t.Errorf("ValidWebhookURL(%q) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}
}
