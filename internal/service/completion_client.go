package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/therapii/api-server-go/internal/config"
)

// maxCompletionBody caps how much of an upstream response is read.
const maxCompletionBody = 4 << 20

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
}

// UpstreamError is a non-2xx answer from the completion API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("completion API status %d: %s", e.Status, e.Message)
}

// errUnreadableResponse means the completion API answered 2xx with a body
// that is not JSON.
var errUnreadableResponse = errors.New("unreadable completion response")

type completer interface {
	ChatCompletion(ctx context.Context, apiKey string, req chatRequest) (*chatResponse, error)
}

// CompletionClient talks to an OpenAI compatible chat completions endpoint.
type CompletionClient struct {
	baseURL string
	client  *http.Client
}

func NewCompletionClient(baseURL string) *CompletionClient {
	return &CompletionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: config.CompletionTimeout,
		},
	}
}

func (c *CompletionClient) ChatCompletion(ctx context.Context, apiKey string, payload chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().
			Err(err).
			Str("model", payload.Model).
			Dur("elapsed", elapsed).
			Msg("completion request error")
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionBody))
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(raw)}
		log.Error().
			Int("status", resp.StatusCode).
			Str("error", upstream.Message).
			Dur("elapsed", elapsed).
			Msg("completion request failed")
		return nil, upstream
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Error().Err(err).Msg("failed to parse completion response")
		return nil, errUnreadableResponse
	}

	log.Debug().
		Str("model", out.Model).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("completion received")

	return &out, nil
}

// upstreamMessage pulls error.message or message out of an error body, falling
// back to the trimmed body text.
func upstreamMessage(raw []byte) string {
	var body struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != nil && strings.TrimSpace(body.Error.Message) != "" {
			return strings.TrimSpace(body.Error.Message)
		}
		if strings.TrimSpace(body.Message) != "" {
			return strings.TrimSpace(body.Message)
		}
		return "OpenAI request failed."
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return "OpenAI request failed."
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
