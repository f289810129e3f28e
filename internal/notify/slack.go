// Package notify delivers escalation notices to chat channels.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// EscalationNotice is the human-facing summary of one fired escalation level.
type EscalationNotice struct {
	TicketID           string
	RuleName           string
	Level              int
	Action             string
	Clock              string
	ElapsedMinutes     int
	Overall            string
	TargetUserID       *string
	TargetDepartmentID *string
}

// SlackNotifier posts escalation notices to one channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier builds a notifier. Options are passed to the Slack client, which
// lets tests point it at a fake API.
func NewSlackNotifier(token, channel string, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{client: slack.New(token, opts...), channel: channel}
}

// NotifyEscalation posts the notice and returns the message timestamp.
func (n *SlackNotifier) NotifyEscalation(ctx context.Context, notice EscalationNotice) (string, error) {
	_, ts, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(FormatEscalation(notice), false),
	)
	if err != nil {
		return "", fmt.Errorf("post slack message: %w", err)
	}
	return ts, nil
}

// FormatEscalation renders the Slack mrkdwn text for a notice.
func FormatEscalation(notice EscalationNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: *SLA escalation level %d* for ticket `%s`\n", notice.Level, notice.TicketID)
	fmt.Fprintf(&b, "*Rule:* %s\n", notice.RuleName)
	fmt.Fprintf(&b, "*Clock:* %s (%d min elapsed, overall %s)\n", notice.Clock, notice.ElapsedMinutes, notice.Overall)
	fmt.Fprintf(&b, "*Action:* %s", notice.Action)
	if notice.TargetUserID != nil {
		fmt.Fprintf(&b, "\n*User:* <@%s>", *notice.TargetUserID)
	}
	if notice.TargetDepartmentID != nil {
		fmt.Fprintf(&b, "\n*Department:* %s", *notice.TargetDepartmentID)
	}
	return b.String()
}
