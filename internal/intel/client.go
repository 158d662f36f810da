package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = "You are a blockchain security analyst. Assess Ethereum transactions for malicious patterns and state your risk level and confidence plainly."

// SearchResult is the free-text answer of the intelligence service.
type SearchResult struct {
	Text        string
	DataSources []string
}

// Searcher queries an external intelligence service.
type Searcher interface {
	Search(ctx context.Context, prompt string) (SearchResult, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("intelligence service returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

// ClientConfig configures the HTTP intelligence client.
type ClientConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is a chat-completions style HTTP Searcher.
type Client struct {
	cfg    ClientConfig
	client *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

func (c *Client) Search(ctx context.Context, prompt string) (SearchResult, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return SearchResult{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return SearchResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("intelligence request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SearchResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SearchResult{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return SearchResult{}, fmt.Errorf("decode response: %w", err)
	}

	var text strings.Builder
	for _, choice := range decoded.Choices {
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(choice.Message.Content)
	}

	return SearchResult{Text: text.String(), DataSources: decoded.Citations}, nil
}
