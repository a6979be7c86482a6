package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/manimstudio-backend/internal/apperr"
	"github.com/yungbote/manimstudio-backend/internal/config"
	"github.com/yungbote/manimstudio-backend/internal/logger"
)

// SceneGeneration is the structured payload the model is asked to produce:
// one complete Manim scene plus naming and descriptive metadata.
type SceneGeneration struct {
	Code        string `json:"code"`
	ClassName   string `json:"class_name"`
	Description string `json:"description"`
	Explanation string `json:"explanation"`
	Model       string `json:"-"`
}

type OpenAIClient interface {
	GenerateScene(ctx context.Context, system string, user string) (*SceneGeneration, error)
}

type openAIClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	temp       float64
	httpClient *http.Client

	maxRetries int
}

func NewOpenAIClient(cfg config.Config, log *logger.Logger) OpenAIClient {
	timeout := cfg.OpenAITimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &openAIClient{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    "https://api.openai.com",
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
		maxTokens:  cfg.OpenAIMaxTokens,
		temp:       cfg.OpenAITemperature,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 2,
	}
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	if code >= 500 && code <= 599 {
		return true
	}
	return false
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

func (c *openAIClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *openAIClient) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("%w: openai decode error: %v; raw=%s", apperr.ErrMalformedOutput, uErr, string(raw))
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		// Respect Retry-After when present
		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// ---- Responses JSON (Structured Outputs via text.format json_schema) ----

type responsesRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format"`
	} `json:"text"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

var sceneGenerationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"code": map[string]any{
			"type":        "string",
			"description": "Complete, executable Python code for the Manim scene. Only valid Python, no markdown fences.",
		},
		"class_name": map[string]any{
			"type":        "string",
			"description": "Name of the Scene class defined in the code",
		},
		"description": map[string]any{
			"type":        "string",
			"description": "Brief description of what the animation teaches",
		},
		"explanation": map[string]any{
			"type":        "string",
			"description": "Optional detailed explanation of the concept",
		},
	},
	"required":             []string{"code", "class_name", "description", "explanation"},
	"additionalProperties": false,
}

func (c *openAIClient) GenerateScene(ctx context.Context, system string, user string) (*SceneGeneration, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", apperr.ErrNotConfigured)
	}

	req := responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxOutputTokens: c.maxTokens,
		Temperature:     c.temp,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   "manim_scene_generation",
		"schema": sceneGenerationSchema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
		return nil, classifyOpenAIErr(err)
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("%w: %s", apperr.ErrGenerationRefused, resp.Refusal)
	}

	var jsonText string
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, part := range item.Content {
				if part.Type == "output_text" && part.Text != "" {
					jsonText += part.Text
				}
			}
		}
	}
	if jsonText == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}

	var gen SceneGeneration
	if err := json.Unmarshal([]byte(jsonText), &gen); err != nil {
		return nil, fmt.Errorf("%w: failed to parse model JSON: %v; text=%s", apperr.ErrMalformedOutput, err, jsonText)
	}
	gen.Model = c.model
	return &gen, nil
}

// classifyOpenAIErr maps transport failures onto the service error taxonomy:
// auth problems surface loudly, transient conditions stay eligible for
// fallback degradation upstream, schema/decode errors pass through untouched.
func classifyOpenAIErr(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *openAIHTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", apperr.ErrNotConfigured, err)
		case isRetryableHTTP(httpErr.StatusCode):
			return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
		default:
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	return err
}
