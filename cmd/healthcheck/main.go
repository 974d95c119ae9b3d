// Command healthcheck is the container probe for keyrelay. It exits 0 when
// GET /health on the configured listen address reports status "ok".
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultAddr  = "127.0.0.1:8080"
	probeTimeout = 2 * time.Second
)

func main() {
	os.Exit(check())
}

func check() int {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	target := healthURL(os.Getenv("KEYRELAY_LISTEN_ADDR"))
	if err := probe(ctx, &http.Client{Timeout: probeTimeout}, target); err != nil {
		logger.Error("health check failed", "url", target, "error", err)
		return 1
	}
	return 0
}

// probe fetches target and checks both the status code and the reported status.
func probe(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if status := gjson.GetBytes(body, "status").String(); status != "ok" {
		return fmt.Errorf("service reported status %q", status)
	}
	return nil
}

// healthURL points at loopback when the server binds every interface, since
// the probe runs inside the same container.
func healthURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if listenAddr == "" || err != nil {
		host, port, _ = net.SplitHostPort(defaultAddr)
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return "http://" + net.JoinHostPort(host, port) + "/health"
}
