package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"threatScope/internal/model"
)

const telegramAPI = "https://api.telegram.org"

// TelegramChannel sends alerts through the Bot API as Markdown messages.
type TelegramChannel struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPI,
		client:   newHTTPClient(),
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Send(ctx context.Context, alert *model.ThreatAlert) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       telegramText(alert),
		"parse_mode": "Markdown",
	}
	return postJSON(ctx, t.client, t.Name(), url, payload)
}

func telegramText(alert *model.ThreatAlert) string {
	text := fmt.Sprintf("%s *[%s] %s*\n\n*Tx:* %s\n*Block:* %d\n*Target:* %s\n*Confidence:* %.0f%%\n*Detector:* %s\n*Time:* %s",
		severityEmoji(alert.Severity),
		strings.ToUpper(string(alert.Severity)),
		escapeMarkdown(title(alert.Type)),
		escapeMarkdown(alert.TxHash),
		alert.BlockNumber,
		escapeMarkdown(target(alert)),
		alert.Confidence*100,
		escapeMarkdown(alert.Detector),
		alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
	)
	if alert.Mitigated {
		text += "\n*Status:* mitigated"
	}
	return text
}

func severityEmoji(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical:
		return "🔴"
	case model.SeverityHigh:
		return "🟠"
	case model.SeverityMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"`", "\\`",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
