// Package assist talks to an OpenAI-compatible chat-completions endpoint to
// summarize evaluations and extract tissue-typing results from lab reports.
// Every call is best effort: failures are returned to the caller wrapped in
// errs.ErrExternal and never retried here.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/transplantflow/platform/pkg/common/config"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/httpclient"
	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/observability/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxResponseBytes = 4 << 20

type Client struct {
	apiKey    string
	baseURL   string
	modelName string
	http      *http.Client
	metrics   *metrics.Metrics
	redactor  *Redactor
}

// NewClient builds a client from cfg. When LLMTokenURL is set requests carry
// an OAuth2 client-credentials token instead of the static API key.
func NewClient(cfg *config.Config, m *metrics.Metrics) *Client {
	base := httpclient.New(cfg.LLMTimeout)
	c := &Client{
		apiKey:    cfg.LLMAPIKey,
		baseURL:   strings.TrimRight(cfg.LLMBaseURL, "/"),
		modelName: cfg.LLMModelName,
		http:      base,
		metrics:   m,
	}
	rules, err := LoadRedactionRules(cfg.RedactionRules)
	if err != nil {
		logger.Log.WithError(err).WithField("path", cfg.RedactionRules).Warn("Failed to load redaction rules, using defaults")
		rules = DefaultRedactionRules()
	}
	if c.redactor, err = NewRedactor(rules); err != nil {
		logger.Log.WithError(err).Warn("Invalid redaction rule, using defaults")
		c.redactor, _ = NewRedactor(DefaultRedactionRules())
	}
	if cfg.LLMTokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.LLMClientID,
			ClientSecret: cfg.LLMClientSecret,
			TokenURL:     cfg.LLMTokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c.http = cc.Client(ctx)
		c.http.Timeout = cfg.LLMTimeout
	}
	return c
}

// Offline reports whether no credentials are configured. Summaries then fall
// back to a deterministic local rendering.
func (c *Client) Offline() bool {
	return c.apiKey == "" && !c.usesOAuth()
}

func (c *Client) usesOAuth() bool {
	_, ok := c.http.Transport.(*oauth2.Transport)
	return ok
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete sends one user message and returns the first choice's content.
func (c *Client) complete(ctx context.Context, operation string, content interface{}, jsonOutput bool) (out string, err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveAssist(operation, err, time.Since(start))
		if err != nil {
			logger.WithField("operation", operation).WithError(err).Warn("Assist call failed")
		}
	}()

	if text, ok := content.(string); ok {
		var masked int
		if content, masked = c.redactor.Redact(text); masked > 0 {
			logger.WithFields(map[string]interface{}{
				"operation": operation,
				"masked":    masked,
			}).Debug("Redacted identifiers from prompt")
		}
	}

	payload := chatRequest{
		Model:       c.modelName,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: 0.3,
	}
	if jsonOutput {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" && !c.usesOAuth() {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errs.ErrExternal, operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %s: read response: %v", errs.ErrExternal, operation, err)
	}

	var result chatResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("%w: %s: status %d: decode response: %v", errs.ErrExternal, operation, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return "", fmt.Errorf("%w: %s: status %d: %s", errs.ErrExternal, operation, resp.StatusCode, msg)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: %s: no response from model", errs.ErrExternal, operation)
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
