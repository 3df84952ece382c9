package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const processedCSV = "Department Name,Total Number of Sales,Region\nSales,12,EU\nOps,7,US\n"

type fakeUploader struct {
	desc JobDescriptor
	err  error
	gate chan struct{}

	mu    sync.Mutex
	files []string
}

func (u *fakeUploader) Upload(ctx context.Context, file FileUpload) (JobDescriptor, error) {
	u.mu.Lock()
	u.files = append(u.files, file.Name)
	u.mu.Unlock()

	if u.gate != nil {
		select {
		case <-u.gate:
		case <-ctx.Done():
			return JobDescriptor{}, ctx.Err()
		}
	}
	return u.desc, u.err
}

type fakeDownloader struct {
	body string
	err  error

	mu    sync.Mutex
	calls int
	urls  []string
}

func (d *fakeDownloader) Download(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	d.mu.Lock()
	d.calls++
	d.urls = append(d.urls, downloadURL)
	d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	return io.NopCloser(strings.NewReader(d.body)), nil
}

func (d *fakeDownloader) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func testDescriptor() JobDescriptor {
	return JobDescriptor{JobID: "job-42", StatusURL: "/api/file/status/job-42", DownloadLink: "/api/file/download/sales-summary.csv"}
}

func testUpload() FileUpload {
	return FileUpload{Name: "sales.csv", ContentType: "text/csv", Size: 10, Body: strings.NewReader("a,b\n1,2\n")}
}

func newTestController(up Uploader, fetcher StatusFetcher, down Downloader) *Controller {
	return NewController(up, fetcher, down, ControllerOptions{Poller: testPollerOptions()})
}

// waitForUpdate reads updates until match returns true.
func waitForUpdate(t *testing.T, ch <-chan Update, match func(Update) bool) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				t.Fatal("update channel closed")
			}
			if match(u) {
				return u
			}
		case <-timeout:
			t.Fatal("timed out waiting for update")
		}
	}
}

func isResult(u Update) bool {
	return u.State == StateCompleted && (u.Table != nil || u.Err != nil)
}

func TestController_SubmitToTable(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{pending(), pending(), completed(1500, 4)}}
	down := &fakeDownloader{body: processedCSV}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, down)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	job, err := c.Submit(context.Background(), testUpload())
	require.NoError(t, err)
	assert.Equal(t, "job-42", job.ID)
	assert.Equal(t, StatePolling, job.State)

	u := waitForUpdate(t, updates, isResult)
	require.NoError(t, u.Err)
	require.NotNil(t, u.Table)
	assert.Equal(t, DefaultRequiredColumns, u.Table.Headers)
	assert.Equal(t, [][]string{{"Sales", "12"}, {"Ops", "7"}}, u.Table.Rows)

	snap := c.Snapshot()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, "4 departments processed in 1.50 s", snap.Summary)
	assert.Equal(t, "sales-summary.csv", snap.FileName)
	assert.True(t, snap.HasTable)
	assert.Equal(t, 2, snap.RowCount)
	assert.Nil(t, snap.Error)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, down.Calls(), "exactly one download per completed job")
	assert.Equal(t, 3, fetcher.Calls())

	view, err := c.View()
	require.NoError(t, err)
	assert.Equal(t, 2, len(view.FilteredRows()))
}

func TestController_UploadFailure(t *testing.T) {
	up := &fakeUploader{err: errors.New("dial tcp: connection refused")}
	c := newTestController(up, &scriptedFetcher{responses: []fetchResponse{pending()}}, &fakeDownloader{})

	_, err := c.Submit(context.Background(), testUpload())

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, StateIdle, c.State())

	snap := c.Snapshot()
	require.NotNil(t, snap.Error)
	assert.Equal(t, "UPL002", snap.Error.Code)
}

func TestController_SubmitWhileActive(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{pending()}}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, &fakeDownloader{})
	defer c.Reset()

	_, err := c.Submit(context.Background(), testUpload())
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testUpload())
	var ise *InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, StatePolling, ise.State)
	assert.Equal(t, "UPL003", MapError(err).Code)
}

func TestController_MissingStatusURL(t *testing.T) {
	desc := testDescriptor()
	desc.StatusURL = ""
	c := newTestController(&fakeUploader{desc: desc}, &scriptedFetcher{responses: []fetchResponse{pending()}}, &fakeDownloader{})

	_, err := c.Submit(context.Background(), testUpload())
	assert.ErrorIs(t, err, ErrMissingStatusURL)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_DownloadFailureKeepsCompleted(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{completed(10, 2)}}
	down := &fakeDownloader{err: errors.New("unexpected status 500")}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, down)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	_, err := c.Submit(context.Background(), testUpload())
	require.NoError(t, err)

	u := waitForUpdate(t, updates, isResult)
	var rre *ResultRetrievalError
	require.ErrorAs(t, u.Err, &rre)
	assert.Equal(t, StateCompleted, c.State())

	_, err = c.Table()
	assert.ErrorIs(t, err, ErrNoResult)

	snap := c.Snapshot()
	require.NotNil(t, snap.Error)
	assert.Equal(t, "RES001", snap.Error.Code)
	assert.NotEmpty(t, snap.Summary)
}

func TestController_ParseFailureKeepsCompleted(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{completed(10, 2)}}
	down := &fakeDownloader{body: "Name,Sales\nx,1\n"}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, down)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	_, err := c.Submit(context.Background(), testUpload())
	require.NoError(t, err)

	u := waitForUpdate(t, updates, isResult)
	var rre *ResultRetrievalError
	require.ErrorAs(t, u.Err, &rre)
	var mce *MissingColumnError
	require.ErrorAs(t, u.Err, &mce)
	assert.Equal(t, "Department Name", mce.Column)
	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, "CSV002", c.Snapshot().Error.Code)
}

func TestController_PollFailure(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{
		{report: StatusReport{State: RemoteFailed, Error: "invalid rows"}},
	}}
	down := &fakeDownloader{body: processedCSV}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, down)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	_, err := c.Submit(context.Background(), testUpload())
	require.NoError(t, err)

	u := waitForUpdate(t, updates, func(u Update) bool { return u.State == StateFailed })
	assert.Error(t, u.Err)
	assert.Equal(t, 0, down.Calls())

	snap := c.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "POLL001", snap.Error.Code)
}

func TestController_CancelMidPoll(t *testing.T) {
	fetcher := &scriptedFetcher{
		responses: []fetchResponse{completed(1, 1)},
		gate:      make(chan struct{}),
	}
	down := &fakeDownloader{body: processedCSV}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, down)

	_, err := c.Submit(context.Background(), testUpload())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fetcher.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, c.Cancel())

	select {
	case fetcher.gate <- struct{}{}:
	case <-time.After(50 * time.Millisecond):
	}
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, down.Calls())
	assert.False(t, c.Cancel(), "second cancel is a no-op")
}

func TestController_CancelDuringUpload(t *testing.T) {
	up := &fakeUploader{desc: testDescriptor(), gate: make(chan struct{})}
	c := newTestController(up, &scriptedFetcher{responses: []fetchResponse{pending()}}, &fakeDownloader{})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), testUpload())
		errCh <- err
	}()

	require.Eventually(t, func() bool { return c.State() == StateSubmitting }, time.Second, time.Millisecond)
	assert.True(t, c.Cancel())
	close(up.gate)

	err := <-errCh
	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_ResetDiscardsTable(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{completed(1, 2)}}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, &fakeDownloader{body: processedCSV})

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	_, err := c.Submit(context.Background(), testUpload())
	require.NoError(t, err)
	waitForUpdate(t, updates, isResult)

	c.Reset()
	assert.Equal(t, StateIdle, c.State())
	_, err = c.Table()
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Nil(t, c.Snapshot().Job)
}

func TestController_ResubmitAfterCompletion(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{completed(1, 2)}}
	down := &fakeDownloader{body: processedCSV}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, down)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	_, err := c.Submit(context.Background(), testUpload())
	require.NoError(t, err)
	waitForUpdate(t, updates, isResult)

	_, err = c.Submit(context.Background(), testUpload())
	require.NoError(t, err)
	waitForUpdate(t, updates, isResult)

	assert.Equal(t, 2, down.Calls())
}

func TestController_DownloadProcessed(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []fetchResponse{completed(1, 2)}}
	down := &fakeDownloader{body: processedCSV}
	c := newTestController(&fakeUploader{desc: testDescriptor()}, fetcher, down)

	var buf bytes.Buffer
	_, err := c.DownloadProcessed(context.Background(), &buf)
	assert.ErrorIs(t, err, ErrNoResult)

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	_, err = c.Submit(context.Background(), testUpload())
	require.NoError(t, err)
	waitForUpdate(t, updates, isResult)

	name, err := c.DownloadProcessed(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, "sales-summary.csv", name)
	assert.Equal(t, processedCSV, buf.String())
}
