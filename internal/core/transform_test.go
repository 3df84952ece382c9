package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	required := []string{"Department Name", "Total Number of Sales"}

	tests := []struct {
		name     string
		raw      string
		dialect  Dialect
		wantRows [][]string
	}{
		{
			name:     "basic",
			raw:      "Department Name,Total Number of Sales\nSales,12\nOps,7\n",
			wantRows: [][]string{{"Sales", "12"}, {"Ops", "7"}},
		},
		{
			name:     "header only",
			raw:      "Department Name,Total Number of Sales\n",
			wantRows: [][]string{},
		},
		{
			name:     "blank lines dropped",
			raw:      "\n\nDepartment Name,Total Number of Sales\n\n  \nSales,12\n\nOps,7",
			wantRows: [][]string{{"Sales", "12"}, {"Ops", "7"}},
		},
		{
			name:     "crlf line endings",
			raw:      "Department Name,Total Number of Sales\r\nSales,12\r\nOps,7\r\n",
			wantRows: [][]string{{"Sales", "12"}, {"Ops", "7"}},
		},
		{
			name:     "reordered and extra columns projected",
			raw:      "Total Number of Sales,Region,Department Name\n12,EU,Sales\n7,US,Ops",
			wantRows: [][]string{{"Sales", "12"}, {"Ops", "7"}},
		},
		{
			name:     "quotes and whitespace stripped",
			raw:      `"Department Name" , "Total Number of Sales"` + "\n" + ` "Sales" ,  "12" `,
			wantRows: [][]string{{"Sales", "12"}},
		},
		{
			name:     "short row padded",
			raw:      "Department Name,Total Number of Sales\nSales",
			wantRows: [][]string{{"Sales", ""}},
		},
		{
			name:     "rfc4180 keeps embedded comma",
			raw:      "Department Name,Total Number of Sales\n\"Sales, EMEA\",12\n",
			dialect:  DialectRFC4180,
			wantRows: [][]string{{"Sales, EMEA", "12"}},
		},
		{
			name:     "rfc4180 skips blank records",
			raw:      "Department Name,Total Number of Sales\n\n,\nOps,7\n",
			dialect:  DialectRFC4180,
			wantRows: [][]string{{"Ops", "7"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Parse(tt.raw, required, WithDialect(tt.dialect))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(table.Headers, required) {
				t.Errorf("Headers = %v, want %v", table.Headers, required)
			}
			if len(table.Rows) != len(tt.wantRows) {
				t.Fatalf("got %d rows, want %d: %v", len(table.Rows), len(tt.wantRows), table.Rows)
			}
			for i := range tt.wantRows {
				if !reflect.DeepEqual(table.Rows[i], tt.wantRows[i]) {
					t.Errorf("row %d = %q, want %q", i, table.Rows[i], tt.wantRows[i])
				}
			}
		})
	}
}

func TestParse_EveryRowMatchesHeaderLength(t *testing.T) {
	raw := "a,b,c\n1\n1,2\n1,2,3\n1,2,3,4\n"
	for _, required := range [][]string{{"a"}, {"c", "a"}, {"b", "c", "a"}} {
		table, err := Parse(raw, required)
		if err != nil {
			t.Fatalf("Parse(%v) error = %v", required, err)
		}
		for i, row := range table.Rows {
			if len(row) != len(table.Headers) {
				t.Errorf("required %v: row %d has %d cells, want %d", required, i, len(row), len(table.Headers))
			}
		}
	}
}

func TestParse_MissingColumn(t *testing.T) {
	_, err := Parse("Name,Sales\nx,1", DefaultRequiredColumns)

	var mce *MissingColumnError
	if !errors.As(err, &mce) {
		t.Fatalf("expected MissingColumnError, got %T: %v", err, err)
	}
	if mce.Column != "Department Name" {
		t.Errorf("Column = %q, want %q", mce.Column, "Department Name")
	}
}

func TestParse_HeaderMatchIsCaseSensitive(t *testing.T) {
	_, err := Parse("department name,Total Number of Sales\nx,1", DefaultRequiredColumns)

	var mce *MissingColumnError
	if !errors.As(err, &mce) {
		t.Fatalf("expected MissingColumnError, got %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{"", "\n", "  \n\t\n \r\n"} {
		_, err := Parse(raw, DefaultRequiredColumns)
		var mce *MalformedCsvError
		if !errors.As(err, &mce) {
			t.Errorf("Parse(%q): expected MalformedCsvError, got %v", raw, err)
		}
	}
}

func TestParse_NoRequiredColumns(t *testing.T) {
	if _, err := Parse("a,b\n1,2", nil); err == nil {
		t.Error("expected error for empty column list")
	}
}

func TestParse_DoesNotAliasRequired(t *testing.T) {
	required := []string{"a"}
	table, err := Parse("a\n1", required)
	if err != nil {
		t.Fatal(err)
	}
	table.Headers[0] = "changed"
	if required[0] != "a" {
		t.Error("Parse returned headers that alias the required slice")
	}
}

func TestParseReader_StripsBOM(t *testing.T) {
	raw := "\xEF\xBB\xBFDepartment Name,Total Number of Sales\nSales,12\n"
	table, err := ParseReader(strings.NewReader(raw), DefaultRequiredColumns)
	if err != nil {
		t.Fatalf("ParseReader() error = %v", err)
	}
	if got := table.Rows[0][0]; got != "Sales" {
		t.Errorf("Rows[0][0] = %q, want Sales", got)
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"", DialectSimple, false},
		{"simple", DialectSimple, false},
		{"RFC4180", DialectRFC4180, false},
		{"excel", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
