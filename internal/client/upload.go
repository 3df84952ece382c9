package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/JonMunkholm/csvjob/internal/core"
)

// uploadField is the multipart form field the backend reads the file from.
const uploadField = "file"

// Upload posts file as multipart/form-data and returns the job descriptor.
// All failures are returned as *core.UploadError.
func (c *Client) Upload(ctx context.Context, file core.FileUpload) (core.JobDescriptor, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ResolveURL(c.uploadPath), pr)
	if err != nil {
		pr.Close()
		return core.JobDescriptor{}, &core.UploadError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req, slog.LevelInfo)
	if err != nil {
		pr.Close()
		return core.JobDescriptor{}, &core.UploadError{Err: err}
	}

	raw, err := c.readAll(ctx, resp, slog.LevelInfo)
	if err != nil {
		return core.JobDescriptor{}, &core.UploadError{Err: err}
	}

	var desc core.JobDescriptor
	if err := decodeValidated(descriptorSchema, raw, &desc); err != nil {
		return core.JobDescriptor{}, &core.UploadError{Err: err}
	}
	return desc, nil
}

func writeMultipart(mw *multipart.Writer, file core.FileUpload) error {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "text/csv"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadField, file.Name))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	return mw.Close()
}
