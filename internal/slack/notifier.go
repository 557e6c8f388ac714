// Package slack mirrors incident notifications into a Slack channel
package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/akmatori/incidentd/internal/queue"
)

// poster is the part of the Slack API the notifier needs
type poster interface {
	conversationLister
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts a one-line summary of each notification to a channel
type Notifier struct {
	client   poster
	resolver *ChannelResolver
	channel  string
	log      *zap.Logger
}

// NewNotifier creates a notifier authenticated with a bot token. Extra
// options are passed to the Slack client (tests point OptionAPIURL at a fake).
func NewNotifier(botToken, channel string, log *zap.Logger, opts ...slack.Option) *Notifier {
	client := slack.New(botToken, opts...)
	return newNotifier(client, channel, log)
}

func newNotifier(client poster, channel string, log *zap.Logger) *Notifier {
	log = log.Named("slack")
	return &Notifier{
		client:   client,
		resolver: NewChannelResolver(client, log),
		channel:  channel,
		log:      log,
	}
}

// Mirror posts req to the configured channel
func (n *Notifier) Mirror(ctx context.Context, req queue.NotificationRequest) error {
	channelID, err := n.resolver.ResolveChannel(ctx, n.channel)
	if err != nil {
		return err
	}

	text := FormatNotification(req)
	_, ts, err := n.client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to post to slack: %w", err)
	}
	n.log.Debug("Mirrored notification",
		zap.String("type", req.Type),
		zap.String("channel", channelID),
		zap.String("ts", ts))
	return nil
}

// FormatNotification renders req as Slack mrkdwn
func FormatNotification(req queue.NotificationRequest) string {
	var sb strings.Builder
	inc := req.Incident
	who := ""
	if req.Engineer != nil {
		who = req.Engineer.Name
		if who == "" {
			who = req.Engineer.Email
		}
	}

	switch req.Type {
	case queue.NotificationIncidentAssignment:
		sb.WriteString(fmt.Sprintf("%s *[%s] %s* assigned to %s", severityEmoji(inc.Severity), strings.ToUpper(inc.Severity), inc.Title, who))
	case queue.NotificationEscalation:
		sb.WriteString(fmt.Sprintf(":arrow_double_up: *%s* escalated to %s", inc.Title, who))
		if req.OriginalEngineer != nil {
			sb.WriteString(fmt.Sprintf(" (no acknowledgement from %s)", req.OriginalEngineer.Name))
		}
	case queue.NotificationAcknowledged:
		sb.WriteString(fmt.Sprintf(":eyes: *%s* acknowledged by %s", inc.Title, who))
	case queue.NotificationResolved:
		sb.WriteString(fmt.Sprintf(":white_check_mark: *%s* resolved by %s", inc.Title, who))
	default:
		sb.WriteString(fmt.Sprintf("*%s* %s", inc.Title, req.Type))
	}

	if inc.Source != "" {
		sb.WriteString(fmt.Sprintf("\nSource: `%s`", inc.Source))
	}
	sb.WriteString(fmt.Sprintf("\nIncident: `%s`", inc.ID))
	return sb.String()
}

func severityEmoji(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return ":red_circle:"
	case "high":
		return ":large_orange_circle:"
	case "warning":
		return ":large_yellow_circle:"
	case "info":
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}
