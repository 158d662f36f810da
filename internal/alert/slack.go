package alert

import (
	"context"
	"fmt"
	"net/http"

	"threatScope/internal/model"
)

// SlackChannel posts alerts as incoming-webhook attachments.
type SlackChannel struct {
	webhookURL string
	channel    string
	username   string
	client     *http.Client
}

func NewSlackChannel(webhookURL, channel, username string) *SlackChannel {
	if username == "" {
		username = "threatScope"
	}
	return &SlackChannel{
		webhookURL: webhookURL,
		channel:    channel,
		username:   username,
		client:     newHTTPClient(),
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert *model.ThreatAlert) error {
	return postJSON(ctx, s.client, s.Name(), s.webhookURL, s.payload(alert))
}

func (s *SlackChannel) payload(alert *model.ThreatAlert) map[string]any {
	payload := map[string]any{
		"username": s.username,
		"attachments": []map[string]any{
			{
				"color":  slackColor(alert.Severity),
				"title":  fmt.Sprintf("[%s] %s", alert.Severity, title(alert.Type)),
				"text":   fmt.Sprintf("Transaction %s in block %d", alert.TxHash, alert.BlockNumber),
				"fields": slackFields(alert),
				"footer": alert.ID,
				"ts":     alert.CreatedAt.Unix(),
			},
		},
	}
	if s.channel != "" {
		payload["channel"] = s.channel
	}
	return payload
}

func slackColor(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical:
		return "#FF0000"
	case model.SeverityHigh:
		return "#FFA500"
	case model.SeverityMedium:
		return "#FFFF00"
	default:
		return "#00FF00"
	}
}

func slackFields(alert *model.ThreatAlert) []map[string]any {
	return []map[string]any{
		{"title": "Target", "value": target(alert), "short": true},
		{"title": "Confidence", "value": fmt.Sprintf("%.0f%%", alert.Confidence*100), "short": true},
		{"title": "Detector", "value": alert.Detector, "short": true},
		{"title": "Status", "value": status(alert), "short": true},
	}
}
