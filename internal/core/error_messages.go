package core

// # Error Codes Reference
//
// Errors shown to users carry a code they can quote to support:
//
//	UPL001 - Upload rejected: the backend refused the file
//	UPL002 - Upload unreachable: the upload endpoint could not be reached
//	UPL003 - Job already running: a submit arrived while a job was active
//	POLL001 - Job failed: the backend reported the job as failed
//	POLL002 - Status unavailable: the status endpoint kept failing
//	POLL003 - Job timed out: the job did not finish in time
//	RES001 - Download failed: the processed file could not be fetched
//	CSV001 - Empty result: the processed file had no content
//	CSV002 - Missing column: a required column was not in the header
//	STATE001 - Nothing to show: no processed result yet
//	FILE001 - File too large
//	FILE002 - Not a CSV file
//	FILE003 - No file provided
//	AUTH001 - Unauthorized
//	ERR000 - Unknown error
//
// Patterns are matched case-insensitively against err.Error(). The first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Job lifecycle
	{
		pattern: "cannot submit while",
		msg: UserMessage{
			Message: "A file is already being processed",
			Action:  "Wait for the current job to finish or cancel it",
			Code:    "UPL003",
		},
	},
	{
		pattern: "backend reported failure",
		msg: UserMessage{
			Message: "The server could not process your file",
			Action:  "Check the file contents and upload it again",
			Code:    "POLL001",
		},
	},
	{
		pattern: "exceeded max duration",
		msg: UserMessage{
			Message: "Processing took too long",
			Action:  "Try again later or upload a smaller file",
			Code:    "POLL003",
		},
	},
	{
		pattern: "status query failed",
		msg: UserMessage{
			Message: "Unable to get the job status",
			Action:  "Please try again in a few moments",
			Code:    "POLL002",
		},
	},

	// CSV content (checked before the wrapping result error)
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Required column is missing from the processed file",
			Action:  "Check that the file contains Department Name and Total Number of Sales",
			Code:    "CSV002",
		},
	},
	{
		pattern: "malformed csv",
		msg: UserMessage{
			Message: "The processed file has no usable content",
			Action:  "Upload a CSV file with a header row and data",
			Code:    "CSV001",
		},
	},
	{
		pattern: "result retrieval failed",
		msg: UserMessage{
			Message: "Unable to download the processed file",
			Action:  "Please try again",
			Code:    "RES001",
		},
	},
	{
		pattern: "no processed result",
		msg: UserMessage{
			Message: "There is no processed data yet",
			Action:  "Upload a file and wait for processing to complete",
			Code:    "STATE001",
		},
	},

	// Upload
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "not a csv file",
		msg: UserMessage{
			Message: "Only CSV files are accepted",
			Action:  "Select a file with a .csv extension",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE003",
		},
	},
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "The server is busy with other uploads",
			Action:  "Please try again in a few moments",
			Code:    "UPL004",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the processing service",
			Action:  "Please try again in a few moments",
			Code:    "UPL002",
		},
	},
	{
		pattern: "upload failed",
		msg: UserMessage{
			Message: "The file could not be submitted",
			Action:  "Please try again",
			Code:    "UPL001",
		},
	},

	{
		pattern: "unauthorized",
		msg: UserMessage{
			Message: "You are not authorized to do this",
			Action:  "Provide a valid API key",
			Code:    "AUTH001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. If no
// pattern matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a display string: "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
