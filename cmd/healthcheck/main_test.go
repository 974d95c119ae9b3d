package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthURL(t *testing.T) {
	tests := []struct {
		listenAddr string
		want       string
	}{
		{listenAddr: "", want: "http://127.0.0.1:8080/health"},
		{listenAddr: "0.0.0.0:9090", want: "http://127.0.0.1:9090/health"},
		{listenAddr: ":7000", want: "http://127.0.0.1:7000/health"},
		{listenAddr: "[::]:7000", want: "http://127.0.0.1:7000/health"},
		{listenAddr: "10.0.0.5:8080", want: "http://10.0.0.5:8080/health"},
		{listenAddr: "[::1]:8080", want: "http://[::1]:8080/health"},
		{listenAddr: "garbage", want: "http://127.0.0.1:8080/health"},
	}

	for _, tc := range tests {
		t.Run(tc.listenAddr, func(t *testing.T) {
			assert.Equal(t, tc.want, healthURL(tc.listenAddr))
		})
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "healthy", status: http.StatusOK, body: `{"status":"ok","time":"2026-10-18T12:00:00Z"}`},
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"status":"ok"}`, wantErr: "unexpected status 503"},
		{name: "degraded body", status: http.StatusOK, body: `{"status":"starting"}`, wantErr: `service reported status "starting"`},
		{name: "not json", status: http.StatusOK, body: "ok", wantErr: `service reported status ""`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			err := probe(context.Background(), srv.Client(), srv.URL+"/health")
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/health"
	srv.Close()

	err := probe(context.Background(), http.DefaultClient, target)
	assert.ErrorContains(t, err, "request:")
}
