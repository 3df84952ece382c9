package commands

import (
	"github.com/urfave/cli/v3"
)

// NewApp builds the csvjob command tree.
func NewApp() *cli.Command {
	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "environment file to load before reading configuration",
		Value: ".env",
	}
	viewFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{
				Name:  "search",
				Usage: "only show rows containing this text (case-insensitive)",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "page of results to print",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "export",
				Usage: "write all matching rows to this file",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "export format (csv/xlsx); defaults to the export file extension",
			},
		}
	}

	return &cli.Command{
		Name:  "csvjob",
		Usage: "submit CSV files for processing and inspect the results",
		Commands: []*cli.Command{
			{
				Name:  "process",
				Usage: "upload a file, wait for the backend to process it and print the result",
				Flags: append([]cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "file",
						Usage:    "CSV file to upload",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "save-processed",
						Usage: "also save the raw processed file to this path",
					},
				}, viewFlags()...),
				Action: ProcessAction,
			},
			{
				Name:  "parse",
				Usage: "project and print a local processed CSV file without contacting the backend",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "processed CSV file to read",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "columns",
						Usage: "required columns, in output order",
						Value: []string{"Department Name", "Total Number of Sales"},
					},
					&cli.StringFlag{
						Name:  "dialect",
						Usage: "CSV tokenizer (simple/rfc4180)",
						Value: "simple",
					},
					&cli.IntFlag{
						Name:  "rows-per-page",
						Usage: "rows per printed page",
						Value: 10,
					},
				}, viewFlags()...),
				Action: ParseAction,
			},
		},
	}
}
