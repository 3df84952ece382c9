package core

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// FormatProcessingTime renders a duration in milliseconds using the largest
// unit that keeps the value readable: "850 ms", "1.50 s", "2.25 min", "1.10 h".
func FormatProcessingTime(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%d ms", ms)
	case ms < 60_000:
		return fmt.Sprintf("%.2f s", float64(ms)/1000)
	case ms < 3_600_000:
		return fmt.Sprintf("%.2f min", float64(ms)/60_000)
	default:
		return fmt.Sprintf("%.2f h", float64(ms)/3_600_000)
	}
}

func formatDepartments(n int64) string {
	return fmt.Sprintf("%d departments", n)
}

// DefaultDownloadName is used when a download link has no usable file name.
const DefaultDownloadName = "file.csv"

func fileNameFromLink(link string) string {
	p := link
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return DefaultDownloadName
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return DefaultDownloadName
	}
	return name
}

// DisplayCell renders an empty cell as "-".
func DisplayCell(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
