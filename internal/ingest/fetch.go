package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/AngelCh415/auction-tracker/internal/utils"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

// IsRemote reports whether loc is an http(s) URL rather than a local path.
func IsRemote(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// Fetch downloads a report. 5xx responses and transport errors are retried
// with b; any other non-2xx status fails immediately. The returned name is
// the last path segment, so the extension still selects the reader.
func Fetch(ctx context.Context, c HTTPClient, rawURL string, b utils.Backoff) (string, []byte, error) {
	if rawURL == "" {
		return "", nil, errors.New("empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse report url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = u.Host
	}

	var body []byte
	err = b.Do(ctx, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return utils.Permanent(err)
		}
		resp, err := c.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("non-2xx: %d body=%s", resp.StatusCode, bytes.TrimSpace(snippet))
			if resp.StatusCode >= 500 {
				return err
			}
			return utils.Permanent(err)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return name, body, nil
}
