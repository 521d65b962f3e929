package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const (
	// The maximum size of an HTTP response body to read.
	maxHTTPBodySize = 100 * 1024 * 1024
)

// HTTPLimitedGet fetches a URL and returns the response body, limited to
// maxSize bytes. Bodies larger than the limit are rejected rather than
// truncated. A maxSize of 0, or one above maxHTTPBodySize, falls back to
// maxHTTPBodySize. The request is bound to the given context.
func HTTPLimitedGet(ctx context.Context, url string, maxSize int64) ([]byte, error) {
	if maxSize == 0 || maxSize > maxHTTPBodySize {
		maxSize = maxHTTPBodySize
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > int(maxSize) {
		return nil, fmt.Errorf("response body exceeded maximum size of %d bytes", maxSize)
	}
	return body, nil
}
