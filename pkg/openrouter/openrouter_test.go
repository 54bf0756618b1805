package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/option"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if NewClient(Config{}) != nil {
		t.Fatal("expected nil client without api key")
	}
}

func TestPreflight(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("X-Title") != "chative" {
			t.Errorf("missing attribution header")
		}
		id := strings.TrimPrefix(r.URL.Path, "/models/")
		if id != "openai/gpt-4o-mini" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"message":"model not found"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"object":"model","created":0,"owned_by":"openai"}`, id)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, SiteName: "chative"},
		option.WithHTTPClient(server.Client()),
		option.WithMaxRetries(0),
	)

	if err := Preflight(context.Background(), client, "openai/gpt-4o-mini", "openai/gpt-4o-mini", ""); err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected duplicate models to be checked once, got %d calls", calls.Load())
	}

	err := Preflight(context.Background(), client, "openai/gpt-4o-mini", "nope/missing")
	if err == nil || !strings.Contains(err.Error(), "nope/missing") {
		t.Fatalf("expected error naming the missing model, got %v", err)
	}
}

func TestConfigNewBuildsModel(t *testing.T) {
	t.Parallel()

	maxTokens := 100
	cfg := Config{BaseURL: "https://openrouter.ai/api/v1/", APIKey: "k", Model: "x-ai/grok-4.1-fast", MaxCompletionToken: &maxTokens}
	m, err := cfg.New(context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m == nil {
		t.Fatal("expected a model")
	}
}
