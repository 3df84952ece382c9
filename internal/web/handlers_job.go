package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/JonMunkholm/csvjob/internal/logging"
	"github.com/JonMunkholm/csvjob/internal/web/templates"
)

// multipartOverhead is allowed on top of the file size for form boundaries
// and headers.
const multipartOverhead = 1 << 20

// sseKeepAlive is how often an idle event stream gets a comment line.
const sseKeepAlive = 15 * time.Second

var acceptedContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/vnd.ms-excel": true,
	// Sent by curl and some browsers for unknown extensions
	"application/octet-stream": true,
}

// readUpload validates the "file" form field and returns it ready for
// submission. The caller must close the returned file.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (core.FileUpload, multipart.File, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return core.FileUpload{}, nil, errTooLarge
		}
		return core.FileUpload{}, nil, errNoFile
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.FileUpload{}, nil, errNoFile
	}

	fail := func(err error) (core.FileUpload, multipart.File, error) {
		file.Close()
		return core.FileUpload{}, nil, err
	}

	if header.Size > maxSize {
		return fail(errTooLarge)
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		return fail(errNotCSV)
	}

	contentType := "text/csv"
	if ct := header.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || !acceptedContentTypes[mediaType] {
			return fail(errNotCSV)
		}
		if mediaType != "application/octet-stream" {
			contentType = mediaType
		}
	}

	return core.FileUpload{
		Name:        filepath.Base(header.Filename),
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, file, nil
}

// submit reads the upload and hands it to the controller.
func (s *Server) submit(w http.ResponseWriter, r *http.Request) (core.Job, error) {
	if err := s.uploads.acquire(r.Context()); err != nil {
		return core.Job{}, err
	}
	defer s.uploads.release()

	upload, file, err := s.readUpload(w, r)
	if err != nil {
		return core.Job{}, err
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.API.UploadTimeout)
	defer cancel()

	job, err := s.jobs.Submit(ctx, upload)
	if err != nil {
		return core.Job{}, err
	}

	logging.WithFields(r.Context(), "job_id", job.ID, "file", upload.Name, "size", upload.Size).
		Info("job submitted")
	return job, nil
}

// handleUpload accepts a CSV file and starts a job.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.submit(w, r); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusAccepted, s.jobs.Snapshot())
}

// handleUploadForm is the HTML form variant of handleUpload.
func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.submit(w, r); err != nil {
		status := statusFor(err)
		msg := logError(r, err, status)
		s.renderIndex(w, r, status, &msg)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleIndex renders the job page with the current table page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r, http.StatusOK, nil)
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, userErr *core.UserMessage) {
	snap := s.jobs.Snapshot()
	data := templates.PageData{Snapshot: snap, Error: userErr}
	if data.Error == nil {
		data.Error = snap.Error
	}

	if view, err := s.tableView(r); err == nil {
		page := view.Page()
		data.Table = &page
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.Page(data).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Warn("render error", "error", err)
	}
}

// handleJob returns the current job snapshot.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.jobs.Snapshot())
}

// cancelResponse reports whether an active job was cancelled.
type cancelResponse struct {
	Cancelled bool          `json:"cancelled"`
	Job       core.Snapshot `json:"job"`
}

// handleCancel cancels the active job, if any.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := s.jobs.Cancel()
	if cancelled {
		logging.FromContext(r.Context()).Info("job cancelled")
	}
	writeJSON(w, r, http.StatusOK, cancelResponse{Cancelled: cancelled, Job: s.jobs.Snapshot()})
}

// handleReset discards the current job and table.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.jobs.Reset()
	writeJSON(w, r, http.StatusOK, s.jobs.Snapshot())
}

func (s *Server) handleCancelForm(w http.ResponseWriter, r *http.Request) {
	s.jobs.Cancel()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleResetForm(w http.ResponseWriter, r *http.Request) {
	s.jobs.Reset()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleDownload streams the processed file from the backend.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	snap := s.jobs.Snapshot()
	if snap.State != core.StateCompleted {
		respondError(w, r, core.ErrNoResult, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, snap.FileName))

	tw := &trackingWriter{ResponseWriter: w}
	if _, err := s.jobs.DownloadProcessed(r.Context(), tw); err != nil {
		if tw.wrote {
			// Headers already sent
			logging.FromContext(r.Context()).Warn("download interrupted", "error", err)
			return
		}
		w.Header().Del("Content-Disposition")
		respondError(w, r, err, statusFor(err))
	}
}

// jobEvent is the payload of each server-sent event.
type jobEvent struct {
	Generation uint64            `json:"generation"`
	State      core.JobState     `json:"state"`
	Job        *core.Job         `json:"job,omitempty"`
	Summary    string            `json:"summary,omitempty"`
	HasTable   bool              `json:"hasTable"`
	Error      *core.UserMessage `json:"error,omitempty"`
}

func eventFromUpdate(u core.Update) jobEvent {
	ev := jobEvent{Generation: u.Generation, State: u.State, HasTable: u.Table != nil}
	if u.State != core.StateIdle {
		job := u.Job
		ev.Job = &job
		if job.Result != nil {
			ev.Summary = job.Result.Summary()
		}
	}
	if u.Err != nil {
		msg := core.MapError(u.Err)
		ev.Error = &msg
	}
	return ev
}

func eventFromSnapshot(s core.Snapshot) jobEvent {
	return jobEvent{
		State:    s.State,
		Job:      s.Job,
		Summary:  s.Summary,
		HasTable: s.HasTable,
		Error:    s.Error,
	}
}

// handleJobEvents streams job state changes via Server-Sent Events. The
// current state is sent first so clients need no separate fetch.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "ERR000")
		return
	}

	updates, unsubscribe := s.jobs.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "state", eventFromSnapshot(s.jobs.Snapshot())); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, "state", eventFromUpdate(u)); err != nil {
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// trackingWriter records whether any body bytes were written.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	if len(b) > 0 {
		t.wrote = true
	}
	return t.ResponseWriter.Write(b)
}
