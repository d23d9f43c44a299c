// Package panel drives the GreatHost control panel through a real browser.
// It owns exactly one Chrome instance and one page for the duration of a run;
// Close releases both on every exit path. All panel API reads and the one
// mutating renewal call go through the page's own fetch, so they ride the
// authenticated session and the same egress path as the rest of the traffic.
package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const ipEchoURL = "https://api.ipify.org?format=json"

// Config holds the session parameters for one panel run.
type Config struct {
	BaseURL  string
	Email    string
	Password string
	ProxyURL string
	Headless bool

	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

// Client is a single-run panel session. Not safe for concurrent use; the
// orchestrator runs one flow at a time by design.
type Client struct {
	cfg      Config
	log      *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// New builds an unstarted client.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 8 * time.Second
	}
	return &Client{cfg: cfg, log: log}
}

// Start launches Chrome and opens the run's page. The proxy, when configured,
// is applied at the browser level so every panel request uses it.
func (c *Client) Start(ctx context.Context) error {
	l := launcher.New().Headless(c.cfg.Headless)
	if c.cfg.ProxyURL != "" {
		l = l.Set(flags.ProxyServer, c.cfg.ProxyURL)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}
	c.launcher = l

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		c.launcher.Cleanup()
		c.launcher = nil
		return fmt.Errorf("connect to chrome: %w", err)
	}
	c.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		c.browser = nil
		c.launcher.Cleanup()
		c.launcher = nil
		return fmt.Errorf("open page: %w", err)
	}
	c.page = page

	c.log.Debug("panel session started", zap.Bool("headless", c.cfg.Headless),
		zap.Bool("proxied", c.cfg.ProxyURL != ""))
	return nil
}

// Close tears the session down. Safe to call multiple times and on a client
// that never started; errors are swallowed because Close runs on fault paths.
func (c *Client) Close() {
	if c.page != nil {
		_ = c.page.Close()
		c.page = nil
	}
	if c.browser != nil {
		_ = c.browser.Close()
		c.browser = nil
	}
	if c.launcher != nil {
		c.launcher.Cleanup()
		c.launcher = nil
	}
}

// EgressIP reports the address the outside world sees this session as, read
// through the browser so it observes the proxied path, not the host's.
func (c *Client) EgressIP(ctx context.Context) (string, error) {
	if err := c.navigate(ctx, ipEchoURL); err != nil {
		return "", fmt.Errorf("ip echo navigate: %w", err)
	}
	el, err := c.page.Context(ctx).Timeout(c.cfg.NavigationTimeout).Element("body")
	if err != nil {
		return "", fmt.Errorf("ip echo body: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("ip echo read: %w", err)
	}

	var out struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return "", fmt.Errorf("ip echo decode: %w", err)
	}
	if out.IP == "" {
		return "", fmt.Errorf("ip echo returned empty address")
	}
	return out.IP, nil
}

func (c *Client) navigate(ctx context.Context, url string) error {
	page := c.page.Context(ctx).Timeout(c.cfg.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

// fetchJSON runs an in-page fetch against a panel API path and decodes the
// JSON response into out. A rejected fetch resolves to a synthetic
// {success:false, message} object instead of throwing, so transport errors
// surface as data, mirroring how the panel's own frontend treats them.
func (c *Client) fetchJSON(ctx context.Context, method, path string, out interface{}) error {
	res, err := c.page.Context(ctx).Timeout(c.cfg.NavigationTimeout).Evaluate(&rod.EvalOptions{
		JS: `(url, method) => fetch(url, { method, credentials: 'same-origin' })
			.then(r => r.json())
			.catch(e => ({ success: false, message: String(e) }))`,
		JSArgs:       []interface{}{path, method},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("fetch %s %s: %w", method, path, err)
	}
	if res == nil || res.Value.Nil() {
		return fmt.Errorf("fetch %s %s: empty response", method, path)
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("fetch %s %s: marshal: %w", method, path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("fetch %s %s: decode: %w", method, path, err)
	}
	return nil
}
