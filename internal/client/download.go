package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Download fetches downloadURL and returns the open body. The caller must
// close it.
func (c *Client) Download(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveURL(downloadURL), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/csv, */*")

	resp, err := c.do(ctx, req, slog.LevelInfo)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return &loggedBody{ReadCloser: resp.Body, resp: resp, logger: c.logger}, nil
}

// loggedBody logs the response line once the body is closed, when the size
// is known.
type loggedBody struct {
	io.ReadCloser
	resp   *response
	logger *slog.Logger
	n      int64
	closed bool
}

func (b *loggedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *loggedBody) Close() error {
	if !b.closed {
		b.closed = true
		b.logger.Info("http response",
			"req_id", b.resp.reqID,
			"status", b.resp.StatusCode,
			"bytes", b.n,
			"elapsed_ms", time.Since(b.resp.start).Milliseconds(),
		)
	}
	return b.ReadCloser.Close()
}
