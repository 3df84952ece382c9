// Package core provides the job lifecycle, CSV transformation and table view
// logic for csvjob.
//
// This package holds all domain logic independent of any UI or transport
// layer. The web server, the CLI and tests drive it through the same types.
//
// # Job Lifecycle
//
// A [Controller] runs one job at a time:
//
//  1. [Controller.Submit] hands the file to an [Uploader] and receives a
//     [JobDescriptor] with a status URL and a download link.
//  2. A [Poller] queries the status URL on a fixed interval, one request at
//     a time, until the backend reports completed or failed.
//  3. On completion the Controller downloads the processed CSV through a
//     [Downloader] and parses it with [Parse].
//  4. Subscribers receive an [Update] for every transition; the parsed table
//     is available via [Controller.View].
//
// [Controller.Cancel] and [Controller.Reset] are safe at any time. Responses
// that arrive for a cancelled job are discarded by generation number.
//
// # CSV Transformation
//
// [Parse] projects a CSV onto a fixed set of named columns. The simple
// dialect splits on commas without quote handling; [DialectRFC4180] is
// quote-aware.
//
// # Table View
//
// [TableView] adds case-insensitive search, pagination and CSV or XLSX
// export of the filtered rows.
//
// # Error Handling
//
// Typed errors ([UploadError], [PollingError], [ResultRetrievalError],
// [MalformedCsvError], [MissingColumnError], [InvalidStateError]) are mapped
// to user-facing messages with support codes by [MapError].
package core
