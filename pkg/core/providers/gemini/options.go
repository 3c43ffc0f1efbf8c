package gemini

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL sets the base URL for API requests.
// Default: https://generativelanguage.googleapis.com/v1beta
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithLiveURL sets the websocket endpoint for live sessions.
func WithLiveURL(url string) Option {
	return func(p *Provider) {
		p.liveURL = url
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithDialer sets the websocket dialer for live sessions.
func WithDialer(d *websocket.Dialer) Option {
	return func(p *Provider) {
		p.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}
