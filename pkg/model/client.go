package model

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/odvcencio/miser/pkg/errors"
)

const openAIBaseURL = "https://api.openai.com/v1"

// Client talks to any OpenAI-compatible chat completion endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a completion client. requestsPerMinute <= 0 disables
// client-side rate limiting.
func NewClient(apiKey, baseURL string, timeout time.Duration, requestsPerMinute int) *Client {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// ChatCompletion executes one completion request, honoring the rate limit.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeGeneration, "waiting for rate limiter")
		}
	}

	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGeneration, "marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGeneration, "creating request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrCodeGenerationTimeout, "completion request timed out")
		}
		return nil, errors.Wrap(err, errors.ErrCodeGeneration, "completion request failed").
			WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGeneration, "decoding response")
	}
	if len(chatResp.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeGeneration, "completion returned no choices")
	}

	return &chatResp, nil
}

func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := resp.Status
	var envelope apiError
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return errors.New(errors.ErrCodeGeneration, "completion request rejected").
		WithContext("status", resp.StatusCode).
		WithContext("detail", message).
		WithRetryable(retryable)
}
