package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvjob/internal/core"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"http", "http://localhost:8080", false},
		{"https with trailing slash", "https://api.example.com/", false},
		{"no scheme", "localhost:8080", true},
		{"ftp", "ftp://example.com", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.baseURL, err, tt.wantErr)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	c, err := New("http://api.local:8080/")
	require.NoError(t, err)

	assert.Equal(t, "http://api.local:8080/api/file/status/1", c.ResolveURL("/api/file/status/1"))
	assert.Equal(t, "http://api.local:8080/api/file/status/1", c.ResolveURL("api/file/status/1"))
	assert.Equal(t, "https://cdn.example.com/out.csv", c.ResolveURL("https://cdn.example.com/out.csv"))
}

func TestUpload(t *testing.T) {
	jobID := uuid.NewString()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/file/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "sales.csv", hdr.Filename)
		assert.Equal(t, "a,b\n1,2\n", string(body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"jobId":        jobID,
			"statusUrl":    "/api/file/status/" + jobID,
			"downloadLink": "/api/file/download/" + jobID + ".csv",
		})
	})

	c := newTestClient(t, mux, WithTokenSource(StaticToken("secret")))

	desc, err := c.Upload(context.Background(), core.FileUpload{
		Name:        "sales.csv",
		ContentType: "text/csv",
		Body:        strings.NewReader("a,b\n1,2\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, jobID, desc.JobID)
	assert.Equal(t, "/api/file/status/"+jobID, desc.StatusURL)
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "<html>")
			},
		},
		{
			name: "missing status url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"jobId":"1","downloadLink":"/d"}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.Upload(context.Background(), core.FileUpload{Name: "x.csv", Body: strings.NewReader("a")})

			var ue *core.UploadError
			require.ErrorAs(t, err, &ue)
		})
	}
}

func TestUpload_NoTokenSendsNoAuthorization(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		io.WriteString(w, `{"jobId":"1","statusUrl":"/s/1","downloadLink":"/d/1"}`)
	}))

	_, err := c.Upload(context.Background(), core.FileUpload{Name: "x.csv", Body: strings.NewReader("a")})
	require.NoError(t, err)
}

func TestFetchStatus(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantErr      bool
		wantTerminal bool
		wantState    core.RemoteState
	}{
		{name: "pending", status: 200, body: `{"state":"pending"}`, wantState: core.RemotePending},
		{name: "completed", status: 200, body: `{"state":"completed","result":{"processingTimeMs":1500,"departmentCount":4}}`, wantState: core.RemoteCompleted},
		{name: "failed", status: 200, body: `{"state":"failed","error":"bad rows"}`, wantState: core.RemoteFailed},
		{name: "negative count is malformed", status: 200, body: `{"state":"completed","result":{"processingTimeMs":1,"departmentCount":-1}}`, wantErr: true},
		{name: "missing state is malformed", status: 200, body: `{"result":null}`, wantErr: true},
		{name: "not json", status: 200, body: `oops`, wantErr: true},
		{name: "server error is transient", status: 503, body: `down`, wantErr: true},
		{name: "rate limited is transient", status: 429, body: ``, wantErr: true},
		{name: "not found is terminal", status: 404, body: `no such job`, wantErr: true, wantTerminal: true},
		{name: "unauthorized is terminal", status: 401, body: ``, wantErr: true, wantTerminal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/file/status/7", r.URL.Path)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			report, err := c.FetchStatus(context.Background(), "/api/file/status/7")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantState, report.State)
				return
			}

			var pe *core.PollingError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantTerminal, pe.Terminal)
			if tt.status != 200 {
				assert.Equal(t, tt.status, pe.StatusCode)
			}
		})
	}
}

func TestFetchStatus_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchStatus(ctx, "/s")
	var pe *core.PollingError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Terminal)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDownload(t *testing.T) {
	const csv = "Department Name,Total Number of Sales\nSales,12\n"
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/file/download/out.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		io.WriteString(w, csv)
	}))

	body, err := c.Download(context.Background(), "/api/file/download/out.csv")
	require.NoError(t, err)
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, csv, string(got))

	_, err = c.Download(context.Background(), "/missing.csv")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestTokenError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}), WithTokenSource(TokenFunc(func(context.Context) (string, error) {
		return "", errors.New("token expired")
	})))

	_, err := c.FetchStatus(context.Background(), "/s")
	assert.ErrorContains(t, err, "token expired")
}
