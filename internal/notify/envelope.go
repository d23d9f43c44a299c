// Package notify renders run verdicts into Telegram messages and delivers
// them over a transport deliberately isolated from the task's network path,
// so a broken proxy cannot also suppress the alert about the broken proxy.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the per-verdict message title.
type Kind string

const (
	KindRenewSuccess Kind = "renew_success"
	KindMaxedOut     Kind = "maxed_out"
	KindCooldown     Kind = "cooldown"
	KindRenewFailed  Kind = "renew_failed"
	KindError        Kind = "error"
	KindChannelTest  Kind = "channel_test"
)

var titles = map[Kind]string{
	KindRenewSuccess: "🎉 <b>GreatHost renewal succeeded</b>",
	KindMaxedOut:     "🈵 <b>GreatHost at capacity</b>",
	KindCooldown:     "⏳ <b>GreatHost still cooling down</b>",
	KindRenewFailed:  "⚠️ <b>GreatHost renewal had no effect</b>",
	KindError:        "🚨 <b>GreatHost run failed</b>",
	KindChannelTest:  "🧪 <b>GreatHost notification check</b>",
}

const fallbackTitle = "‼️ <b>GreatHost notice</b>"

// Field is one rendered label/value line. Order is significant and preserved.
type Field struct {
	Emoji string
	Label string
	Value string
}

// Envelope is an immutable notification. Rendering is a pure function of this
// value; nothing outside it may influence the message body.
type Envelope struct {
	Kind      Kind
	Fields    []Field
	Timestamp string
}

// NewEnvelope stamps an envelope with the given instant in the given zone.
func NewEnvelope(kind Kind, fields []Field, at time.Time, zone *time.Location) Envelope {
	if zone == nil {
		zone = time.UTC
	}
	return Envelope{
		Kind:      kind,
		Fields:    fields,
		Timestamp: at.In(zone).Format("2006/01/02 15:04:05"),
	}
}

// Render produces the HTML message body: title, one line per field, trailing
// timestamp line.
func Render(env Envelope) string {
	title, ok := titles[env.Kind]
	if !ok {
		title = fallbackTitle
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, f := range env.Fields {
		fmt.Fprintf(&b, "%s <b>%s:</b> %s\n", f.Emoji, f.Label, f.Value)
	}
	fmt.Fprintf(&b, "📅 <b>Time:</b> %s", env.Timestamp)
	return b.String()
}
