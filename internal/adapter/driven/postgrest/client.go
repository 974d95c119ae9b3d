// Package postgrest implements the CredentialStore port against a Supabase
// (PostgREST) REST endpoint authenticated with the service-role key.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.CredentialStore = (*Client)(nil)
	_ driven.StoreDialer     = (*Dialer)(nil)
)

// maxErrorBody caps how much of an error response is read for diagnostics.
const maxErrorBody = 8 << 10

// Client upserts credentials through the PostgREST table endpoint.
type Client struct {
	httpClient *http.Client
	tableURL   string
	token      string
}

// upsertRow is the request body. Field names follow the table's columns.
type upsertRow struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

// confirmationRow is the representation requested back after the upsert.
type confirmationRow struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// apiError is the PostgREST error body.
type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// NewClient creates a Client for table on the project at baseURL.
func NewClient(httpClient *http.Client, baseURL *url.URL, table, token string) *Client {
	u := *baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rest/v1/" + url.PathEscape(table)
	u.RawQuery = url.Values{
		"on_conflict": {"user_id"},
		"select":      {"user_id,created_at,updated_at"},
	}.Encode()

	return &Client{
		httpClient: httpClient,
		tableURL:   u.String(),
		token:      token,
	}
}

// Upsert posts the record with merge-duplicates resolution on user_id and
// returns the single row PostgREST hands back.
func (c *Client) Upsert(ctx context.Context, rec model.CredentialRecord) (model.Confirmation, error) {
	payload, err := json.Marshal(upsertRow{UserID: rec.UserID, APIKey: rec.APIKey})
	if err != nil {
		return model.Confirmation{}, fmt.Errorf("encode upsert body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL, bytes.NewReader(payload))
	if err != nil {
		return model.Confirmation{}, fmt.Errorf("build upsert request: %w", err)
	}
	req.Header.Set("apikey", c.token)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error embeds the project URL; report only the cause.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return model.Confirmation{}, fmt.Errorf("upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Confirmation{}, decodeError(resp)
	}

	var row confirmationRow
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		return model.Confirmation{}, fmt.Errorf("decode upsert response: %w", err)
	}

	return model.Confirmation{
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("store responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	msg := apiErr.Message
	switch apiErr.Code {
	case "23505":
		msg = "conflict while storing the key: " + msg
	case "22001":
		msg = "the api key is too long for the store: " + msg
	case "42501":
		msg = "permission denied for the store role: " + msg
	}
	if apiErr.Code != "" {
		return fmt.Errorf("%s (code %s)", msg, apiErr.Code)
	}
	return fmt.Errorf("%s", msg)
}

// Dialer builds Clients for "http://" and "https://" project endpoints.
type Dialer struct {
	httpClient *http.Client
	table      string
}

// NewDialer creates a Dialer sharing httpClient across every Client it builds.
func NewDialer(httpClient *http.Client, table string) *Dialer {
	return &Dialer{httpClient: httpClient, table: table}
}

// IsEndpoint reports whether endpoint names an HTTP(S) project URL.
func IsEndpoint(endpoint string) bool {
	return strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://")
}

// Dial validates the endpoint and returns a Client. No session is created or
// refreshed; the token is sent with every request.
func (d *Dialer) Dial(_ context.Context, endpoint, token string) (driven.CredentialStore, error) {
	if endpoint == "" || token == "" {
		return nil, driven.ErrStoreNotConfigured
	}
	if !IsEndpoint(endpoint) {
		return nil, fmt.Errorf("%w: not an http(s) endpoint", driven.ErrUnsupportedEndpoint)
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid project url", driven.ErrUnsupportedEndpoint)
	}

	return NewClient(d.httpClient, u, d.table, token), nil
}
