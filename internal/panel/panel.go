package panel

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Selectors the panel has kept stable across frontend revisions.
const (
	renewButtonSelector      = "#renew-free-server-btn"
	accumulatedTimeSelector  = "#accumulated-time"
	startButtonSelector      = `button.btn-start[title="Start Server"]`
	errorToastSelectors      = ".toast-error, .alert-danger"
	loginEmailSelector       = `input[name="email"]`
	loginPasswordSelector    = `input[name="password"]`
	loginSubmitSelector      = `button[type="submit"]`
	dashboardURLFragment     = "/dashboard"
	accumulatedReadAttempts  = 10
	accumulatedReadInterval  = time.Second
	dashboardPollInterval    = 500 * time.Millisecond
)

// Server is one entry from the account's server listing.
type Server struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RenewalInfo is the renewal block of the contract API response. CanRenew is
// a pointer because the field is sometimes omitted, and absent is a distinct
// signal from false.
type RenewalInfo struct {
	CanRenew        *bool  `json:"canRenew"`
	NextRenewalDate string `json:"nextRenewalDate"`
}

// Contract mirrors the renewal-relevant slice of the contract API response.
type Contract struct {
	RenewalInfo RenewalInfo `json:"renewalInfo"`
}

// RenewDetails carries the post-renewal expiry when the panel reports one.
type RenewDetails struct {
	NextRenewalDate string `json:"nextRenewalDate"`
}

// RenewResponse is the mutating renewal call's response shape.
type RenewResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Details RenewDetails `json:"details"`
}

// statusDisplay maps the panel's status vocabulary to an icon and a display
// name. Unknown statuses pass through verbatim with a question mark.
var statusDisplay = map[string][2]string{
	"running":   {"🟢", "Running"},
	"starting":  {"🟡", "Starting"},
	"stopped":   {"🔴", "Stopped"},
	"offline":   {"⚪", "Offline"},
	"suspended": {"🚫", "Suspended"},
}

// StatusDisplay renders a raw status as "icon Name".
func StatusDisplay(status string) string {
	key := strings.ToLower(strings.TrimSpace(status))
	if d, ok := statusDisplay[key]; ok {
		return d[0] + " " + d[1]
	}
	return "❓ " + status
}

// Login authenticates the session and waits for the dashboard.
func (c *Client) Login(ctx context.Context) error {
	if err := c.navigate(ctx, c.cfg.BaseURL+"/login"); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	page := c.page.Context(ctx).Timeout(c.cfg.NavigationTimeout)
	email, err := page.Element(loginEmailSelector)
	if err != nil {
		return fmt.Errorf("email field: %w", err)
	}
	if err := email.Input(c.cfg.Email); err != nil {
		return fmt.Errorf("email input: %w", err)
	}

	password, err := page.Element(loginPasswordSelector)
	if err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := password.Input(c.cfg.Password); err != nil {
		return fmt.Errorf("password input: %w", err)
	}

	submit, err := page.Element(loginSubmitSelector)
	if err != nil {
		return fmt.Errorf("submit button: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("submit click: %w", err)
	}

	if err := c.waitURLContains(ctx, dashboardURLFragment); err != nil {
		return fmt.Errorf("dashboard never appeared, credentials likely rejected: %w", err)
	}
	c.log.Debug("authenticated")
	return nil
}

func (c *Client) waitURLContains(ctx context.Context, fragment string) error {
	deadline := time.Now().Add(c.cfg.NavigationTimeout)
	for {
		info, err := c.page.Context(ctx).Info()
		if err == nil && strings.Contains(info.URL, fragment) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %q in URL", fragment)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dashboardPollInterval):
		}
	}
}

// Servers lists the account's servers through the panel API.
func (c *Client) Servers(ctx context.Context) ([]Server, error) {
	var out struct {
		Servers []Server `json:"servers"`
	}
	if err := c.fetchJSON(ctx, "GET", "/api/servers", &out); err != nil {
		return nil, err
	}
	return out.Servers, nil
}

// SelectServer locks the run onto one server. An explicit target must exist
// by name. With no target configured, a single-server account auto-locks;
// anything else is ambiguous and refused.
func SelectServer(servers []Server, target string) (Server, error) {
	if len(servers) == 0 {
		return Server{}, fmt.Errorf("account has no servers")
	}
	if target != "" {
		for _, s := range servers {
			if s.Name == target {
				return s, nil
			}
		}
		return Server{}, fmt.Errorf("no server named %q", target)
	}
	if len(servers) == 1 {
		return servers[0], nil
	}
	return Server{}, fmt.Errorf("account has %d servers, TARGET_NAME required", len(servers))
}

// Status reads a server's live status through the panel API.
func (c *Client) Status(ctx context.Context, serverID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.fetchJSON(ctx, "GET", "/api/servers/"+serverID+"/information", &out); err != nil {
		return "", err
	}
	if out.Status == "" {
		return "unknown", nil
	}
	return strings.ToLower(out.Status), nil
}

// OpenContract navigates to the server's contract page, which the renewal
// button and the accumulated-time element live on, and lets it settle.
func (c *Client) OpenContract(ctx context.Context, serverID string) error {
	if err := c.navigate(ctx, fmt.Sprintf("%s/contracts/%s", c.cfg.BaseURL, serverID)); err != nil {
		return fmt.Errorf("open contract page: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}
	return nil
}

// ContractInfo reads the contract's renewal block through the panel API.
func (c *Client) ContractInfo(ctx context.Context, serverID string) (Contract, error) {
	var out Contract
	if err := c.fetchJSON(ctx, "GET", "/api/servers/"+serverID+"/contract", &out); err != nil {
		return Contract{}, err
	}
	return out, nil
}

// RenewButtonText reads the renewal affordance as rendered. This is the last
// line of defense for cooldown detection and is read even when the API said
// renewal is allowed.
func (c *Client) RenewButtonText(ctx context.Context) (string, error) {
	el, err := c.page.Context(ctx).Timeout(c.cfg.NavigationTimeout).Element(renewButtonSelector)
	if err != nil {
		return "", fmt.Errorf("renew button: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("renew button text: %w", err)
	}
	return text, nil
}

var digitsRe = regexp.MustCompile(`\d+`)

// parseHoursText extracts the integer hour count from element text like
// "64 hours".
func parseHoursText(text string) (int, bool) {
	m := digitsRe.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AccumulatedHours reads the accumulated-time element, retrying until it
// carries digits; the page populates it asynchronously.
func (c *Client) AccumulatedHours(ctx context.Context) (int, error) {
	var lastText string
	for attempt := 0; attempt < accumulatedReadAttempts; attempt++ {
		el, err := c.page.Context(ctx).Timeout(c.cfg.NavigationTimeout).Element(accumulatedTimeSelector)
		if err != nil {
			return 0, fmt.Errorf("accumulated time element: %w", err)
		}
		text, err := el.Text()
		if err == nil {
			lastText = text
			if n, ok := parseHoursText(text); ok {
				return n, nil
			}
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(accumulatedReadInterval):
		}
	}
	return 0, fmt.Errorf("accumulated time never loaded, last text %q", lastText)
}

// Renew fires the mutating renewal call. The API POST is the primary
// strategy; clicking the rendered button is the fallback when the POST path
// itself breaks. respOut is filled by whichever strategy ran.
func (c *Client) Renew(ctx context.Context, serverID string) (RenewResponse, error) {
	var resp RenewResponse

	err := tryStrategies(ctx, c.cfg.NavigationTimeout, "renew", []strategy{
		{
			name: "api post",
			fn: func(ctx context.Context) error {
				var out RenewResponse
				if err := c.fetchJSON(ctx, "POST", "/api/renewal/contracts/"+serverID+"/renew-free", &out); err != nil {
					return err
				}
				resp = out
				return nil
			},
		},
		{
			name: "button click",
			fn: func(ctx context.Context) error {
				el, err := c.page.Context(ctx).Element(renewButtonSelector)
				if err != nil {
					return err
				}
				if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
					return err
				}
				// Nothing machine-readable comes back from a click; the
				// before/after measurement decides what happened.
				resp = RenewResponse{Success: true}
				return nil
			},
		},
		{
			name: "js click",
			fn: func(ctx context.Context) error {
				_, err := c.page.Context(ctx).Evaluate(&rod.EvalOptions{
					JS:      `(sel) => { const el = document.querySelector(sel); if (!el) throw new Error('no element'); el.click(); return true; }`,
					JSArgs:  []interface{}{renewButtonSelector},
					ByValue: true,
				})
				if err != nil {
					return err
				}
				resp = RenewResponse{Success: true}
				return nil
			},
		},
	})
	if err != nil {
		return RenewResponse{}, err
	}

	c.log.Debug("renewal action fired",
		zap.Bool("success", resp.Success), zap.String("message", resp.Message))
	return resp, nil
}

// StartServer tries to start an offline server. Best effort: a missing,
// hidden, or disabled start button is not an error, and callers never fail
// the run over this.
func (c *Client) StartServer(ctx context.Context) (bool, error) {
	page := c.page.Context(ctx).Timeout(5 * time.Second)
	el, err := page.Element(startButtonSelector)
	if err != nil {
		return false, nil
	}
	visible, err := el.Visible()
	if err != nil || !visible {
		return false, nil
	}
	if disabled, _ := el.Attribute("disabled"); disabled != nil {
		return false, nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("start click: %w", err)
	}
	c.log.Debug("start command issued")
	return true, nil
}

// ErrorToast scans for the panel's error toast after a renewal attempt and
// returns its text, or empty when none is showing.
func (c *Client) ErrorToast(ctx context.Context) string {
	page := c.page.Context(ctx).Timeout(3 * time.Second)
	el, err := page.Element(errorToastSelectors)
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// Settle blocks for the configured post-action delay.
func (c *Client) Settle(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.SettleDelay):
		return nil
	}
}
