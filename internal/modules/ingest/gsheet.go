package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/yungbote/fluent-backend/internal/platform/apierr"
)

// MaxSheetBytes caps a downloaded spreadsheet export.
const MaxSheetBytes = 50 << 20

// SheetExportURL turns a public Google Sheets link into its CSV export URL.
func SheetExportURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", apierr.Invalid("invalid spreadsheet url")
	}
	if !strings.EqualFold(u.Hostname(), "docs.google.com") || !strings.HasPrefix(u.Path, "/spreadsheets/") {
		return "", apierr.Invalid("url must be a public Google Sheet")
	}
	base := u.Path
	if i := strings.Index(base, "/edit"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, "/")
	base = strings.TrimSuffix(base, "/export")
	out := url.URL{Scheme: "https", Host: u.Host, Path: base + "/export", RawQuery: "format=csv"}
	if gid := u.Query().Get("gid"); gid != "" {
		out.RawQuery += "&gid=" + url.QueryEscape(gid)
	} else if strings.HasPrefix(u.Fragment, "gid=") {
		out.RawQuery += "&gid=" + url.QueryEscape(strings.TrimPrefix(u.Fragment, "gid="))
	}
	return out.String(), nil
}

// FetchSheet downloads a CSV export.
func FetchSheet(ctx context.Context, client *http.Client, exportURL string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download sheet: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Invalid("spreadsheet download failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSheetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}
	if len(data) > MaxSheetBytes {
		return nil, apierr.Invalid("spreadsheet exceeds %d bytes", MaxSheetBytes)
	}
	return data, nil
}
