package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"vsachain/config"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to allocate port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func TestRunServesUntilCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("failed to create config: %v", err)
	}
	cfg.Node.Storage = "memory"
	cfg.Node.DataDir = filepath.Join(dir, "data")
	cfg.RPC.ListenAddress = freeAddress(t)
	cfg.Archive.Enabled = true
	cfg.Archive.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", filepath.Base(dir))
	cfg.Exports.Dir = filepath.Join(dir, "exports")

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logger) }()

	url := "http://" + cfg.RPC.ListenAddress
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(url + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never became healthy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status %d", resp.StatusCode)
	}

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"auction_list"}`)
	resp, err = http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("rpc call failed: %v", err)
	}
	var out struct {
		Result []json.RawMessage `json:"result"`
		Error  json.RawMessage   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(out.Error) != 0 || len(out.Result) != 0 {
		t.Fatalf("expected empty auction list, got result=%v error=%s", out.Result, out.Error)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestBuildDispatchersRejectsInvalidEndpoint(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := config.WebhookConfig{
		Endpoints: []config.WebhookEndpoint{
			{URL: "https://hooks.example.com/vsa", Secret: "s3cret", Events: []string{"auction.settled"}},
			{URL: "not a url", Secret: "s3cret"},
		},
		MaxAttempts:          3,
		InitialBackoffMillis: 10,
		TimeoutSeconds:       1,
		QueueSize:            4,
	}
	if _, err := buildDispatchers(cfg, logger); err == nil {
		t.Fatal("expected invalid endpoint to fail")
	}

	cfg.Endpoints = cfg.Endpoints[:1]
	dispatchers, err := buildDispatchers(cfg, logger)
	if err != nil {
		t.Fatalf("build dispatchers: %v", err)
	}
	if len(dispatchers) != 1 {
		t.Fatalf("expected one dispatcher, got %d", len(dispatchers))
	}
	for _, d := range dispatchers {
		d.Close()
	}
}
