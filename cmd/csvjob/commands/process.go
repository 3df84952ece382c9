package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/csvjob/internal/application"
	"github.com/JonMunkholm/csvjob/internal/config"
	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/JonMunkholm/csvjob/internal/logging"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// snapshotInterval is how often waitForResult double-checks the controller
// in case an update was dropped.
const snapshotInterval = time.Second

// ProcessAction uploads a file, waits for the job and prints the result.
func ProcessAction(ctx context.Context, cmd *cli.Command) error {
	if envFile := cmd.String("env"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only the table.
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctrl, err := application.NewController(cfg, logger)
	if err != nil {
		return err
	}

	upload, file, err := openUpload(cmd.String("file"), cfg.Upload.MaxFileSize)
	if err != nil {
		return err
	}
	defer file.Close()

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	submitCtx, cancel := context.WithTimeout(ctx, cfg.API.UploadTimeout)
	job, err := ctrl.Submit(submitCtx, upload)
	cancel()
	if err != nil {
		return err
	}
	logger.Info("job submitted", "job_id", job.ID, "file", upload.Name, "size", upload.Size)

	snap, err := waitForResult(ctx, ctrl, updates, logger)
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	if snap.Summary != "" {
		fmt.Fprintln(out, snap.Summary)
	}

	if path := cmd.String("save-processed"); path != "" {
		if err := saveProcessed(ctx, ctrl, path); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved processed file to %s\n", path)
	}

	view, err := ctrl.View()
	if err != nil {
		return err
	}
	return finish(cmd, view)
}

// openUpload checks the file the same way the web upload form does.
func openUpload(path string, maxSize int64) (core.FileUpload, *os.File, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return core.FileUpload{}, nil, fmt.Errorf("not a csv file: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return core.FileUpload{}, nil, fmt.Errorf("open input: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return core.FileUpload{}, nil, fmt.Errorf("stat input: %w", err)
	}
	if info.Size() > maxSize {
		f.Close()
		return core.FileUpload{}, nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxSize)
	}

	return core.FileUpload{
		Name:        filepath.Base(path),
		ContentType: "text/csv",
		Size:        info.Size(),
		Body:        f,
	}, f, nil
}

// jobWatcher is the part of core.Controller waitForResult needs.
type jobWatcher interface {
	Cancel() bool
	Snapshot() core.Snapshot
}

// waitForResult blocks until the job has a table, fails, or ctx ends. On
// ctx end the job is cancelled.
func waitForResult(ctx context.Context, jobs jobWatcher, updates <-chan core.Update, logger *slog.Logger) (core.Snapshot, error) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			jobs.Cancel()
			return core.Snapshot{}, ctx.Err()

		case u, ok := <-updates:
			if !ok {
				return core.Snapshot{}, errors.New("job updates closed before the job finished")
			}
			logger.Debug("job update", "state", u.State, "job_id", u.Job.ID)

		case <-ticker.C:
		}

		if snap, done := finished(jobs.Snapshot()); done {
			return snap, snap.Err
		}
	}
}

// finished reports whether a snapshot is final: failed, or completed with
// either a table or a retrieval error.
func finished(s core.Snapshot) (core.Snapshot, bool) {
	switch s.State {
	case core.StateFailed:
		if s.Err == nil {
			s.Err = errors.New("job failed")
		}
		return s, true
	case core.StateCompleted:
		return s, s.HasTable || s.Err != nil
	default:
		return s, false
	}
}

func saveProcessed(ctx context.Context, jobs interface {
	DownloadProcessed(context.Context, io.Writer) (string, error)
}, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	_, err = jobs.DownloadProcessed(ctx, f)
	return err
}
