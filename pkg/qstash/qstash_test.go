package qstash

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPublish(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotAuth string
		gotBody string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		fmt.Fprint(w, `{"messageId":"msg_1"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, Token: "tok"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	out, err := client.Publish(context.Background(), "tool-audit", []byte(`{"tool":"add_task"}`))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if out.MessageID != "msg_1" {
		t.Fatalf("MessageID = %q", out.MessageID)
	}
	if gotPath != "/v2/publish/tool-audit" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody != `{"tool":"add_task"}` {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestPublishErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{URL: server.URL, Token: "tok"}, WithHTTPClient(server.Client()))
	if _, err := client.Publish(context.Background(), "x", []byte(`{}`)); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
	if _, err := client.Publish(context.Background(), " ", []byte(`{}`)); err == nil {
		t.Fatal("expected error for empty destination")
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{URL: "", Token: "t"}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClient(Config{URL: "https://qstash.upstash.io"}); err == nil {
		t.Fatal("expected error for empty token")
	}
	if (Config{Token: "t"}).Enabled() {
		t.Fatal("config without destination must not be enabled")
	}
}
