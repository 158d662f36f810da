package alert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"threatScope/internal/model"
)

// DiscordChannel posts alerts as webhook embeds.
type DiscordChannel struct {
	webhookURL string
	username   string
	client     *http.Client
}

func NewDiscordChannel(webhookURL, username string) *DiscordChannel {
	if username == "" {
		username = "threatScope"
	}
	return &DiscordChannel{
		webhookURL: webhookURL,
		username:   username,
		client:     newHTTPClient(),
	}
}

func (d *DiscordChannel) Name() string {
	return "discord"
}

func (d *DiscordChannel) Send(ctx context.Context, alert *model.ThreatAlert) error {
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, d.payload(alert))
}

func (d *DiscordChannel) payload(alert *model.ThreatAlert) map[string]any {
	return map[string]any{
		"username": d.username,
		"embeds": []map[string]any{
			{
				"title":       fmt.Sprintf("[%s] %s", alert.Severity, title(alert.Type)),
				"description": fmt.Sprintf("Transaction `%s` in block %d", alert.TxHash, alert.BlockNumber),
				"color":       discordColor(alert.Severity),
				"fields":      discordFields(alert),
				"timestamp":   alert.CreatedAt.Format(time.RFC3339),
				"footer":      map[string]string{"text": alert.ID},
			},
		},
	}
}

func discordColor(sev model.Severity) int {
	switch sev {
	case model.SeverityCritical:
		return 0xFF0000
	case model.SeverityHigh:
		return 0xFFA500
	case model.SeverityMedium:
		return 0xFFFF00
	default:
		return 0x00FF00
	}
}

func discordFields(alert *model.ThreatAlert) []map[string]any {
	return []map[string]any{
		{"name": "Target", "value": target(alert), "inline": true},
		{"name": "Confidence", "value": fmt.Sprintf("%.0f%%", alert.Confidence*100), "inline": true},
		{"name": "Detector", "value": alert.Detector, "inline": true},
		{"name": "Status", "value": status(alert), "inline": true},
	}
}
