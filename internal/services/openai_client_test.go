package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/yungbote/manimstudio-backend/internal/apperr"
)

func newTestOpenAIClient(t *testing.T, srv *httptest.Server, maxRetries int) *openAIClient {
	t.Helper()
	return &openAIClient{
		log:        newTestLogger(t).With("service", "OpenAIClient"),
		baseURL:    srv.URL,
		apiKey:     "test-key",
		model:      "gpt-4o-2024-08-06",
		maxTokens:  1000,
		temp:       0.3,
		httpClient: srv.Client(),
		maxRetries: maxRetries,
	}
}

func sceneResponseBody(t *testing.T, gen SceneGeneration) []byte {
	t.Helper()
	inner, err := json.Marshal(gen)
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(map[string]any{
		"output": []map[string]any{
			{
				"type": "message",
				"role": "assistant",
				"content": []map[string]any{
					{"type": "output_text", "text": string(inner)},
				},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestGenerateSceneSuccess(t *testing.T) {
	want := SceneGeneration{
		Code:        "from manim import *\n\nclass WaveScene(Scene):\n    def construct(self):\n        pass\n",
		ClassName:   "WaveScene",
		Description: "A wave animation",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path=%q, want /v1/responses", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header=%q", got)
		}
		var req responsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Input) != 2 || req.Input[0].Role != "system" || req.Input[1].Role != "user" {
			t.Errorf("unexpected input layout: %+v", req.Input)
		}
		w.Write(sceneResponseBody(t, want))
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv, 0)
	got, err := c.GenerateScene(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("GenerateScene() err=%v", err)
	}
	if got.ClassName != want.ClassName || got.Code != want.Code {
		t.Fatalf("unexpected generation: %+v", got)
	}
	if got.Model != "gpt-4o-2024-08-06" {
		t.Fatalf("model=%q, want the configured model stamped on", got.Model)
	}
}

func TestGenerateSceneMissingKey(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv, 0)
	c.apiKey = ""
	_, err := c.GenerateScene(context.Background(), "s", "u")
	if !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("err=%v, want ErrNotConfigured", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("server hit %d times without a key, want 0", hits)
	}
}

func TestGenerateSceneAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv, 0)
	_, err := c.GenerateScene(context.Background(), "s", "u")
	if !errors.Is(err, apperr.ErrNotConfigured) {
		t.Fatalf("err=%v, want ErrNotConfigured for 401", err)
	}
}

func TestGenerateSceneUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv, 0)
	_, err := c.GenerateScene(context.Background(), "s", "u")
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("err=%v, want ErrUpstream for 503", err)
	}
}

func TestGenerateSceneRetriesTransientFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("retry backoff sleeps")
	}
	var hits int32
	want := SceneGeneration{Code: "from manim import *", ClassName: "X", Description: "d"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
			return
		}
		w.Write(sceneResponseBody(t, want))
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv, 2)
	got, err := c.GenerateScene(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("GenerateScene() err=%v", err)
	}
	if got.ClassName != "X" {
		t.Fatalf("unexpected generation: %+v", got)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("server hit %d times, want 2", hits)
	}
}

func TestGenerateSceneRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"output":  []map[string]any{},
			"refusal": "cannot comply",
		})
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv, 0)
	_, err := c.GenerateScene(context.Background(), "s", "u")
	if !errors.Is(err, apperr.ErrGenerationRefused) {
		t.Fatalf("err=%v, want ErrGenerationRefused", err)
	}
}

func TestGenerateSceneMalformedModelJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{
				{
					"type": "message",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "output_text", "text": "this is not json"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestOpenAIClient(t, srv, 0)
	_, err := c.GenerateScene(context.Background(), "s", "u")
	if !errors.Is(err, apperr.ErrMalformedOutput) {
		t.Fatalf("err=%v, want ErrMalformedOutput", err)
	}
}
