package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAPIBase        = "https://api.telegram.org"
	defaultDispatchWindow = 5 * time.Second
)

// Dispatcher delivers envelopes to a Telegram chat. Delivery is at-most-once:
// a single bounded-timeout attempt whose failure is logged and swallowed. A
// dropped notification must never be mistaken for, or mask, a task failure.
type Dispatcher struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	log     *zap.Logger
}

// Option adjusts a Dispatcher. Used by tests to point at a local endpoint.
type Option func(*Dispatcher)

// WithAPIBase overrides the Telegram API base URL.
func WithAPIBase(base string) Option {
	return func(d *Dispatcher) { d.apiBase = strings.TrimRight(base, "/") }
}

// WithTimeout overrides the single-attempt delivery window.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.client.Timeout = timeout }
}

// NewDispatcher builds a dispatcher for the given bot token and chat. The
// HTTP client is constructed with an explicit nil proxy so that neither the
// task's proxy configuration nor the process environment can reroute or
// silence the alert channel.
func NewDispatcher(token, chatID string, log *zap.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		token:   token,
		chatID:  chatID,
		apiBase: defaultAPIBase,
		client: &http.Client{
			Timeout:   defaultDispatchWindow,
			Transport: &http.Transport{Proxy: nil},
		},
		log: log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch renders and delivers one envelope. It never panics and returns no
// error: transport failures are logged locally and swallowed. With no token
// or chat configured it logs the rendered body at debug level and returns.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) {
	body := Render(env)

	if d.token == "" || d.chatID == "" {
		d.log.Debug("telegram not configured, dropping notification",
			zap.String("kind", string(env.Kind)))
		return
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", d.apiBase, d.token)
	form := url.Values{
		"chat_id":    {d.chatID},
		"text":       {body},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		d.log.Warn("telegram request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warn("telegram delivery failed",
			zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		d.log.Warn("telegram rejected notification",
			zap.String("kind", string(env.Kind)), zap.Int("status", resp.StatusCode))
		return
	}
	d.log.Info("notification delivered", zap.String("kind", string(env.Kind)))
}
