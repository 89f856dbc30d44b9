package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxArchiveSize = 512 << 20 // 512 MB

var (
	// zipMagic starts every local file header of a zip container.
	zipMagic = []byte("PK\x03\x04")

	archiveMIMEs = map[string]bool{
		"application/zip":          true,
		"application/x-zip":        true,
		"application/octet-stream": true,
		"application/apkg":         true,
	}
)

func (s *Server) fetchDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := s.mediaMode(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	if strings.HasPrefix(rawURL, "data:") {
		data, err = decodeDataURI(rawURL)
	} else {
		data, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := validateMagicBytes(data); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tmp, err := os.CreateTemp("", "decksmith-fetch-*.apkg")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to buffer archive: %v", err)), nil
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to buffer archive: %v", err)), nil
	}

	res, err := s.svc.Extract(ctx, tmp.Name(), s.baseDir, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	if mime != "" && !archiveMIMEs[mime] {
		return nil, fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	if len(data) > maxArchiveSize {
		return nil, fmt.Errorf("archive too large: %d bytes (max %d)", len(data), maxArchiveSize)
	}
	return data, nil
}

// fetchHTTP downloads an archive from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 5 * time.Minute,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxArchiveSize {
		return nil, fmt.Errorf("archive too large: exceeds %d bytes", maxArchiveSize)
	}
	return data, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// validateMagicBytes verifies the payload is a zip container.
func validateMagicBytes(data []byte) error {
	if !bytes.HasPrefix(data, zipMagic) {
		return fmt.Errorf("content is not a zip archive (detected: %s)", http.DetectContentType(data))
	}
	return nil
}
