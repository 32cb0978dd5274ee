package render

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRenderPostsTemplateAndData(t *testing.T) {
	var got renderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("expected /render, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL})
	pdf, err := client.Render(context.Background(), []byte("<html></html>"), map[string]string{"name": "Acme"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(pdf) != "%PDF-1.4" {
		t.Fatalf("unexpected pdf bytes: %q", pdf)
	}

	template, err := base64.StdEncoding.DecodeString(got.TemplateBase64)
	if err != nil {
		t.Fatalf("decode template: %v", err)
	}
	if string(template) != "<html></html>" {
		t.Fatalf("unexpected template: %q", template)
	}
}

func TestRenderDoesNotRetryHTTPErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad template", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL})
	if _, err := client.Render(context.Background(), []byte("x"), nil); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
}
