package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	ports "finboard/internal/sheets"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Credentials selects how the Sheets API client authenticates. A service
// account (JSON, then File) is preferred; otherwise an OAuth client plus a
// user token saved by finboard-oauth-init is used.
type Credentials struct {
	JSON string
	File string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

func (c Credentials) hasServiceAccount() bool {
	return strings.TrimSpace(c.JSON) != "" || strings.TrimSpace(c.File) != ""
}

func (c Credentials) hasOAuth() bool {
	return strings.TrimSpace(c.OAuthClientJSON) != "" || strings.TrimSpace(c.OAuthClientFile) != ""
}

// Client reads whole sheets through the Sheets API v4.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ ports.SheetReader = (*Client)(nil)

// New creates a Sheets API client with read-only scope.
func New(ctx context.Context, spreadsheetID string, creds Credentials) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// newSheetsService initializes a Sheets Service using Service Account or
// OAuth user credentials. Falls back to GOOGLE_APPLICATION_CREDENTIALS when
// neither is configured.
func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	if !creds.hasServiceAccount() && creds.hasOAuth() {
		return newOAuthService(ctx, creds)
	}

	credsJSON := strings.TrimSpace(creds.JSON)
	credsFile := strings.TrimSpace(creds.File)
	if credsJSON == "" && credsFile == "" {
		credsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var (
		raw []byte
		err error
	)
	switch {
	case credsJSON != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		raw = []byte(credsJSON)
	case credsFile != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", credsFile)
		raw, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newOAuthService authenticates as the user who authorized the saved token.
// The token source refreshes the access token as it expires.
func newOAuthService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	clientRaw, err := inlineOrFile(creds.OAuthClientJSON, creds.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	config, err := goauth.ConfigFromJSON(clientRaw, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenRaw, err := inlineOrFile(creds.OAuthTokenJSON, creds.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if len(tokenRaw) == 0 {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenRaw, &token); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	base := newHTTPClientWithPooling()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := config.Client(ctx, &token)

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// inlineOrFile returns inline when set, otherwise the contents of path.
// Both empty yields nil.
func inlineOrFile(inline, path string) ([]byte, error) {
	if v := strings.TrimSpace(inline); v != "" {
		return []byte(v), nil
	}
	if p := strings.TrimSpace(path); p != "" {
		return os.ReadFile(p)
	}
	return nil, nil
}

// ReadSheet fetches every populated cell of the named sheet as formatted text.
func (c *Client) ReadSheet(ctx context.Context, name string) (ports.Table, error) {
	if c.svc == nil {
		return ports.Table{}, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteSheet(name)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		if strings.Contains(err.Error(), "Unable to parse range") {
			return ports.Table{}, fmt.Errorf("%w: %s", ports.ErrSheetNotFound, name)
		}
		return ports.Table{}, fmt.Errorf("read sheet %s: %w", name, err)
	}
	return ports.NewTable(name, toMatrix(resp.Values)), nil
}

// quoteSheet turns a sheet name into an A1 range covering the whole sheet.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toMatrix(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = toStrings(row)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// newHTTPClientWithPooling creates an HTTP client for Google endpoints with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}
