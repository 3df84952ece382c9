// Package application assembles the job controller from configuration. Both
// the web server and the CLI start from here.
package application

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/csvjob/internal/client"
	"github.com/JonMunkholm/csvjob/internal/config"
	"github.com/JonMunkholm/csvjob/internal/core"
)

// NewClient builds the backend client described by cfg.API.
func NewClient(cfg *config.Config, logger *slog.Logger) (*client.Client, error) {
	opts := []client.Option{
		// Downloads can outlast any fixed client timeout; requests carry
		// their own deadlines.
		client.WithHTTPClient(&http.Client{}),
		client.WithUploadPath(cfg.API.UploadPath),
		client.WithLogger(logger),
	}
	if cfg.API.Token != "" {
		opts = append(opts, client.WithTokenSource(client.StaticToken(cfg.API.Token)))
	}

	c, err := client.New(cfg.API.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	return c, nil
}

// ControllerOptions maps cfg onto core.ControllerOptions.
func ControllerOptions(cfg *config.Config, logger *slog.Logger) (core.ControllerOptions, error) {
	dialect, err := core.ParseDialect(cfg.Table.Dialect)
	if err != nil {
		return core.ControllerOptions{}, err
	}

	return core.ControllerOptions{
		Poller: core.PollerOptions{
			Interval:             cfg.Poll.Interval,
			RequestTimeout:       cfg.API.RequestTimeout,
			MaxConsecutiveErrors: cfg.Poll.MaxConsecutiveErrors,
			MaxDuration:          cfg.Poll.MaxDuration,
		},
		RequiredColumns: cfg.Table.RequiredColumns,
		Dialect:         dialect,
		RowsPerPage:     cfg.Table.RowsPerPage,
		Logger:          logger,
	}, nil
}

// NewController wires a backend client into a core.Controller.
func NewController(cfg *config.Config, logger *slog.Logger) (*core.Controller, error) {
	c, err := NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts, err := ControllerOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	return core.NewController(c, c, c, opts), nil
}
