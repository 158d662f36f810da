package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"threatScope/internal/model"
)

const sendTimeout = 10 * time.Second

// Channel delivers a single alert to one notification target.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *model.ThreatAlert) error
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: sendTimeout}
}

// postJSON sends payload and treats any non-2xx response as an error carrying the body.
func postJSON(ctx context.Context, client *http.Client, name, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// title renders a threat type such as flash_loan_attack as "Flash Loan Attack".
func title(t model.ThreatType) string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "mev" {
			words[i] = "MEV"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func target(alert *model.ThreatAlert) string {
	if alert.TargetContract == "" {
		return "contract creation"
	}
	return alert.TargetContract
}

func status(alert *model.ThreatAlert) string {
	if alert.Mitigated {
		return "mitigated"
	}
	return "open"
}
