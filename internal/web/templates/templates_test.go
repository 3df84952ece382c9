package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/csvjob/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultTable_EscapesAndPlaceholders(t *testing.T) {
	view := core.NewTableView(&core.StructuredTable{
		Headers: []string{"Department Name", "Total Number of Sales"},
		Rows: [][]string{
			{"<script>", "10"},
			{"Toys", ""},
		},
	}, 10)

	var buf bytes.Buffer
	require.NoError(t, ResultTable(view.Page()).Render(context.Background(), &buf))
	out := buf.String()

	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "<td>-</td>")
	assert.Contains(t, out, "Showing 1 to 2 of 2 results")
	assert.Contains(t, out, "Page 1 of 1")
	assert.NotContains(t, out, ">Next<")
}

func TestResultTable_PagerLinksKeepSearch(t *testing.T) {
	rows := make([][]string, 25)
	for i := range rows {
		rows[i] = []string{"Sales", "1"}
	}
	view := core.NewTableView(&core.StructuredTable{Headers: []string{"Department Name", "Total Number of Sales"}, Rows: rows}, 10)
	view.SetSearchTerm("sales")
	view.GoToPage(2)

	var buf bytes.Buffer
	require.NoError(t, ResultTable(view.Page()).Render(context.Background(), &buf))
	out := buf.String()

	assert.Contains(t, out, `href="/?page=1&amp;search=sales"`)
	assert.Contains(t, out, `href="/?page=3&amp;search=sales"`)
	assert.Contains(t, out, "format=xlsx&amp;search=sales")
}

func TestJobStatus_States(t *testing.T) {
	tests := []struct {
		name string
		snap core.Snapshot
		want []string
	}{
		{"idle", core.Snapshot{State: core.StateIdle}, []string{`data-state="idle"`, "Select a CSV file"}},
		{"polling", core.Snapshot{State: core.StatePolling, Job: &core.Job{ID: "j-1"}}, []string{"<code>j-1</code>"}},
		{
			"completed",
			core.Snapshot{State: core.StateCompleted, Summary: "4 departments processed in 1.50 s", FileName: "out.csv"},
			[]string{"4 departments processed in 1.50 s", "Download out.csv", "Start over"},
		},
		{"failed", core.Snapshot{State: core.StateFailed}, []string{"Processing failed", "Start over"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, JobStatus(tt.snap).Render(context.Background(), &buf))
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestPage_ShowsErrorAndCancelWhileActive(t *testing.T) {
	var buf bytes.Buffer
	err := Page(PageData{
		Snapshot: core.Snapshot{State: core.StatePolling},
		Error:    &core.UserMessage{Message: "Upload failed", Action: "Try again", Code: "UPL001"},
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "Upload failed")
	assert.Contains(t, out, "UPL001")
	assert.Contains(t, out, `action="/cancel"`)
	assert.NotContains(t, out, `enctype="multipart/form-data"`)
}
