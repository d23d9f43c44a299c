// Package run sequences one renewal pass: verify egress identity, log in,
// lock the target server, read state, decide eligibility, act or skip,
// classify the outcome, and notify. The sequencing is deliberately thin; the
// decisions live in renewal, egress, and notify. Every exit path releases the
// browser session and dispatches exactly one notification.
package run

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hostkeeper/internal/config"
	"hostkeeper/internal/egress"
	"hostkeeper/internal/notify"
	"hostkeeper/internal/panel"
	"hostkeeper/internal/renewal"
)

// faultTruncateLen bounds the fault description carried in a notification.
const faultTruncateLen = 100

// Session is the browser-mediated panel surface the orchestrator drives.
// *panel.Client implements it; tests substitute fakes.
type Session interface {
	Start(ctx context.Context) error
	Close()
	EgressIP(ctx context.Context) (string, error)
	Login(ctx context.Context) error
	Servers(ctx context.Context) ([]panel.Server, error)
	Status(ctx context.Context, serverID string) (string, error)
	StartServer(ctx context.Context) (bool, error)
	OpenContract(ctx context.Context, serverID string) error
	ContractInfo(ctx context.Context, serverID string) (panel.Contract, error)
	AccumulatedHours(ctx context.Context) (int, error)
	RenewButtonText(ctx context.Context) (string, error)
	Renew(ctx context.Context, serverID string) (panel.RenewResponse, error)
	ErrorToast(ctx context.Context) string
	Settle(ctx context.Context) error
}

// Notifier delivers one envelope; implementations never propagate failures.
type Notifier interface {
	Dispatch(ctx context.Context, env notify.Envelope)
}

// Runner executes renewal passes. No state survives between calls to Run;
// every pass builds its signals fresh.
type Runner struct {
	cfg        *config.Config
	log        *zap.Logger
	verifier   *egress.Verifier
	notifier   Notifier
	newSession func() Session
	clock      func() time.Time
}

// New wires a runner from configuration.
func New(cfg *config.Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		log:      log,
		verifier: egress.NewVerifier(cfg.Egress.ExpectedIP, cfg.Panel.ProxyURL, cfg.Egress.ProbeTimeout(), log),
		notifier: notify.NewDispatcher(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log),
		newSession: func() Session {
			return panel.New(panel.Config{
				BaseURL:           cfg.Panel.BaseURL,
				Email:             cfg.Panel.Email,
				Password:          cfg.Panel.Password,
				ProxyURL:          cfg.Panel.ProxyURL,
				Headless:          cfg.Panel.Headless,
				NavigationTimeout: cfg.Panel.NavigationTimeout(),
				SettleDelay:       cfg.Panel.SettleDelay(),
			}, log)
		},
		clock: time.Now,
	}
}

// flowState tracks the last-known context for fault reporting.
type flowState struct {
	stage      string
	serverName string
	serverID   string
	loginIP    string
	statusDisp string
	started    bool
}

// Run executes one pass and returns its verdict. It never returns an error:
// faults become the error verdict and its notification, because the process
// exits 0 on every outcome when running unattended.
func (r *Runner) Run(ctx context.Context) renewal.Verdict {
	runID := uuid.NewString()
	log := r.log.With(zap.String("run_id", runID))

	sess := r.newSession()
	defer sess.Close()

	st := &flowState{stage: "init", serverName: "unknown", serverID: "unknown", loginIP: "Unknown"}
	verdict, env := r.execute(ctx, log, sess, st)
	r.notifier.Dispatch(ctx, env)

	log.Info("run complete",
		zap.String("verdict", string(verdict)),
		zap.String("server", st.serverName),
		zap.String("stage", st.stage))
	return verdict
}

// DryRun executes the read-only half of a pass: identity gate, login, state
// read, eligibility. No mutating call, no notification.
func (r *Runner) DryRun(ctx context.Context) (renewal.Eligibility, error) {
	sess := r.newSession()
	defer sess.Close()

	if err := sess.Start(ctx); err != nil {
		return renewal.Eligibility{}, fmt.Errorf("session start: %w", err)
	}
	if _, err := r.verifier.Verify(ctx, sess.EgressIP); err != nil {
		return renewal.Eligibility{}, err
	}
	if err := sess.Login(ctx); err != nil {
		return renewal.Eligibility{}, fmt.Errorf("login: %w", err)
	}

	servers, err := sess.Servers(ctx)
	if err != nil {
		return renewal.Eligibility{}, err
	}
	target, err := panel.SelectServer(servers, r.cfg.Panel.TargetName)
	if err != nil {
		return renewal.Eligibility{}, err
	}
	sig, _, err := r.readSignal(ctx, sess, target.ID)
	if err != nil {
		return renewal.Eligibility{}, err
	}
	return renewal.Classify(sig), nil
}

func (r *Runner) execute(ctx context.Context, log *zap.Logger, sess Session, st *flowState) (renewal.Verdict, notify.Envelope) {
	loc, err := r.cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	envelope := func(kind notify.Kind, fields []notify.Field) notify.Envelope {
		return notify.NewEnvelope(kind, fields, r.clock(), loc)
	}
	fail := func(cause error) (renewal.Verdict, notify.Envelope) {
		log.Error("run fault", zap.String("stage", st.stage), zap.Error(cause))
		return renewal.VerdictError, envelope(notify.KindError, []notify.Field{
			{Emoji: "🖥️", Label: "Server", Value: st.serverName},
			{Emoji: "📍", Label: "Stage", Value: st.stage},
			{Emoji: "❌", Label: "Fault", Value: "<code>" + truncate(cause.Error(), faultTruncateLen) + "</code>"},
		})
	}

	st.stage = "session start"
	if err := sess.Start(ctx); err != nil {
		return fail(err)
	}

	// Hard gate: with an expectation configured, an unverifiable or wrong
	// egress identity ends the run before any credential is typed.
	st.stage = "egress verification"
	idRes, err := r.verifier.Verify(ctx, sess.EgressIP)
	if err != nil {
		return fail(err)
	}
	st.loginIP = r.identityField(ctx, sess, idRes)

	st.stage = "authentication"
	if err := sess.Login(ctx); err != nil {
		return fail(err)
	}

	st.stage = "server discovery"
	servers, err := sess.Servers(ctx)
	if err != nil {
		return fail(err)
	}
	target, err := panel.SelectServer(servers, r.cfg.Panel.TargetName)
	if err != nil {
		return fail(err)
	}
	st.serverName, st.serverID = target.Name, target.ID
	log.Debug("server locked", zap.String("name", target.Name), zap.String("id", target.ID))

	// Status is advisory: a failed read degrades to "unknown", never faults.
	st.stage = "status read"
	status, err := sess.Status(ctx, target.ID)
	if err != nil {
		log.Debug("status read failed", zap.Error(err))
		status = "unknown"
	}
	st.statusDisp = panel.StatusDisplay(status)

	if status == "offline" || status == "stopped" {
		st.stage = "start assist"
		started, err := sess.StartServer(ctx)
		if err != nil {
			log.Debug("start assist failed", zap.Error(err))
		}
		st.started = started
	}

	st.stage = "contract read"
	sig, before, err := r.readSignal(ctx, sess, target.ID)
	if err != nil {
		return fail(err)
	}

	st.stage = "eligibility"
	elig := renewal.Classify(sig)
	if elig.State == renewal.CoolingDown {
		wait := elig.WaitHint
		if wait == "" {
			wait = "cooling down"
		}
		log.Info("cooldown active",
			zap.String("wait", wait), zap.Int("before_hours", before))
		return renewal.VerdictCooldown, envelope(notify.KindCooldown, []notify.Field{
			{Emoji: "🖥️", Label: "Server", Value: st.serverName},
			{Emoji: "⏳", Label: "Remaining wait", Value: "<code>" + wait + "</code>"},
			{Emoji: "📊", Label: "Accumulated", Value: fmt.Sprintf("%dh", before)},
			{Emoji: "🚀", Label: "Status", Value: st.statusField()},
		})
	}

	st.stage = "renewal action"
	resp, err := sess.Renew(ctx, target.ID)
	if err != nil {
		return fail(err)
	}
	if err := sess.Settle(ctx); err != nil {
		return fail(err)
	}

	// Post-action read. Falls through the timestamp sources to the rendered
	// element; a fully transient read substitutes the pre-action value so
	// classification lands in the failed bucket instead of crashing.
	st.stage = "post-action read"
	after := renewal.ParseRemainingHours(resp.Details.NextRenewalDate, r.clock())
	if after == 0 {
		if c, err := sess.ContractInfo(ctx, target.ID); err == nil {
			after = renewal.ParseRemainingHours(c.RenewalInfo.NextRenewalDate, r.clock())
		}
	}
	if after == 0 {
		if n, err := sess.AccumulatedHours(ctx); err == nil && n > 0 {
			after = n
		}
	}
	if after == 0 {
		after = before
	}
	responseText := resp.Message
	if toast := sess.ErrorToast(ctx); toast != "" {
		responseText = strings.TrimSpace(responseText + " " + toast)
	}

	st.stage = "outcome"
	m := renewal.Measurement{
		BeforeHours:     before,
		AfterHours:      after,
		ActionSucceeded: resp.Success,
		ResponseText:    responseText,
	}
	verdict := renewal.ClassifyOutcome(m, r.cfg.Renewal.CapacityThresholdHours)
	log.Info("outcome classified",
		zap.String("verdict", string(verdict)),
		zap.Int("before_hours", before),
		zap.Int("after_hours", after),
		zap.Bool("action_succeeded", resp.Success))

	switch verdict {
	case renewal.VerdictRenewed:
		return verdict, envelope(notify.KindRenewSuccess, []notify.Field{
			{Emoji: "🖥️", Label: "Server", Value: st.serverName},
			{Emoji: "🆔", Label: "ID", Value: "<code>" + st.serverID + "</code>"},
			{Emoji: "⏰", Label: "Hours", Value: fmt.Sprintf("%d ➔ %dh", before, after)},
			{Emoji: "🚀", Label: "Status", Value: st.statusField()},
			{Emoji: "🌐", Label: "Login IP", Value: "<code>" + st.loginIP + "</code>"},
		})
	case renewal.VerdictAtCapacity:
		return verdict, envelope(notify.KindMaxedOut, []notify.Field{
			{Emoji: "🖥️", Label: "Server", Value: st.serverName},
			{Emoji: "🆔", Label: "ID", Value: "<code>" + st.serverID + "</code>"},
			{Emoji: "⏰", Label: "Remaining", Value: fmt.Sprintf("%dh", after)},
			{Emoji: "🚀", Label: "Status", Value: st.statusField()},
			{Emoji: "💡", Label: "Note", Value: fmt.Sprintf("At the %dh cap, nothing to renew.", r.cfg.Renewal.CapacityThresholdHours)},
			{Emoji: "🌐", Label: "Login IP", Value: "<code>" + st.loginIP + "</code>"},
		})
	default:
		reason := responseText
		if reason == "" {
			reason = "no measurable increase"
		}
		return verdict, envelope(notify.KindRenewFailed, []notify.Field{
			{Emoji: "🖥️", Label: "Server", Value: st.serverName},
			{Emoji: "⏰", Label: "Current", Value: fmt.Sprintf("%dh", before)},
			{Emoji: "💡", Label: "Reason", Value: "<code>" + truncate(reason, faultTruncateLen) + "</code>"},
		})
	}
}

// readSignal opens the contract page and gathers the three eligibility
// sources: the capability flag, the timestamp-derived hours, and the button
// text. A timestamp that parses to nothing falls back to the rendered
// accumulated-time element. Returns the signal plus the pre-action hour count.
func (r *Runner) readSignal(ctx context.Context, sess Session, serverID string) (renewal.Signal, int, error) {
	if err := sess.OpenContract(ctx, serverID); err != nil {
		return renewal.Signal{}, 0, err
	}
	contract, err := sess.ContractInfo(ctx, serverID)
	if err != nil {
		return renewal.Signal{}, 0, err
	}
	before := renewal.ParseRemainingHours(contract.RenewalInfo.NextRenewalDate, r.clock())
	if before == 0 {
		if n, err := sess.AccumulatedHours(ctx); err == nil && n > 0 {
			before = n
		}
	}

	btnText, err := sess.RenewButtonText(ctx)
	if err != nil {
		return renewal.Signal{}, 0, err
	}
	return renewal.Signal{
		CanRenew:       contract.RenewalInfo.CanRenew,
		RemainingHours: &before,
		ButtonText:     btnText,
	}, before, nil
}

// identityField renders the login-IP notification field. With verification
// configured the masked observation is used; without, the probe runs once
// best-effort and its raw answer is shown, since no expectation means no
// redaction policy is in force.
func (r *Runner) identityField(ctx context.Context, sess Session, res egress.Result) string {
	if res.Expected != "" {
		return egress.Mask(res.Observed)
	}
	ip, err := sess.EgressIP(ctx)
	if err != nil || ip == "" {
		return "Unknown"
	}
	return ip
}

func (st *flowState) statusField() string {
	if st.started {
		return "✅ start triggered"
	}
	return st.statusDisp
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
