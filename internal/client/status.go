package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/csvjob/internal/core"
)

// FetchStatus queries statusURL. Failures are returned as *core.PollingError:
// client errors (4xx other than 408 and 429) are terminal, everything else
// including malformed bodies is transient.
func (c *Client) FetchStatus(ctx context.Context, statusURL string) (core.StatusReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveURL(statusURL), nil)
	if err != nil {
		return core.StatusReport{}, &core.PollingError{Terminal: true, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req, slog.LevelDebug)
	if err != nil {
		code := StatusCode(err)
		return core.StatusReport{}, &core.PollingError{
			StatusCode: code,
			Terminal:   isTerminalStatus(code),
			Err:        err,
		}
	}

	raw, err := c.readAll(ctx, resp, slog.LevelDebug)
	if err != nil {
		return core.StatusReport{}, &core.PollingError{StatusCode: resp.StatusCode, Err: err}
	}

	var report core.StatusReport
	if err := decodeValidated(statusSchema, raw, &report); err != nil {
		return core.StatusReport{}, &core.PollingError{StatusCode: resp.StatusCode, Err: err}
	}
	return report, nil
}

func isTerminalStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	return code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}
