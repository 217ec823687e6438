package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	ports "finboard/internal/sheets"
)

const defaultExportBase = "https://docs.google.com/spreadsheets/d/"

// CSVExport reads sheets of a publicly shared spreadsheet through the gviz
// CSV export endpoint. No credentials are needed.
type CSVExport struct {
	httpClient    *http.Client
	baseURL       string
	spreadsheetID string
}

var _ ports.SheetReader = (*CSVExport)(nil)

// NewCSVExport creates an export reader for spreadsheetID. A nil client uses
// a pooled client with bounded timeouts.
func NewCSVExport(spreadsheetID string, client *http.Client) *CSVExport {
	if client == nil {
		client = newHTTPClientWithPooling()
	}
	return &CSVExport{httpClient: client, baseURL: defaultExportBase, spreadsheetID: strings.TrimSpace(spreadsheetID)}
}

// WithBaseURL points the reader at another host, e.g. a test server.
func (c *CSVExport) WithBaseURL(base string) *CSVExport {
	c.baseURL = strings.TrimSuffix(base, "/") + "/"
	return c
}

func (c *CSVExport) exportURL(sheet string) string {
	q := url.Values{}
	q.Set("tqx", "out:csv")
	q.Set("sheet", sheet)
	return c.baseURL + url.PathEscape(c.spreadsheetID) + "/gviz/tq?" + q.Encode()
}

// ReadSheet downloads and parses the CSV export of the named sheet.
func (c *CSVExport) ReadSheet(ctx context.Context, name string) (ports.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exportURL(name), nil)
	if err != nil {
		return ports.Table{}, fmt.Errorf("build export request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.Table{}, fmt.Errorf("fetch sheet %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ports.Table{}, fmt.Errorf("%w: %s", ports.ErrSheetNotFound, name)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ports.Table{}, fmt.Errorf("fetch sheet %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		// Private spreadsheets answer with a sign-in page.
		return ports.Table{}, fmt.Errorf("fetch sheet %s: spreadsheet is not publicly readable", name)
	}
	return ports.ParseCSV(name, resp.Body)
}
