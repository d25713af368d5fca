// Package validation checks speech record input before any side effect runs.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinTextLength     = 10
	MaxTextLength     = 700
	MinFileNameLength = 5
	MaxFileNameLength = 20
)

// Error is returned when input breaks a length or emptiness rule. The message
// is safe to show to API clients.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

type input struct {
	text, fileName       string
	textLen, fileNameLen int
}

type rule struct {
	field   string
	fails   func(in input) bool
	message string
}

// rules are evaluated in order and the first failing one wins, so a short
// file name is reported before an overly long text.
var rules = []rule{
	{"text", func(in input) bool { return in.text == "" }, "text must not be empty"},
	{"text", func(in input) bool { return in.textLen < MinTextLength },
		fmt.Sprintf("text must not be shorter than %d characters", MinTextLength)},
	{"file_name", func(in input) bool { return in.fileName == "" }, "file name must not be empty"},
	{"file_name", func(in input) bool { return in.fileNameLen < MinFileNameLength },
		fmt.Sprintf("file name must not be shorter than %d characters", MinFileNameLength)},
	{"text", func(in input) bool { return in.textLen > MaxTextLength },
		fmt.Sprintf("text must not exceed %d characters", MaxTextLength)},
	{"file_name", func(in input) bool { return in.fileNameLen > MaxFileNameLength },
		fmt.Sprintf("file name must not exceed %d characters", MaxFileNameLength)},
	{"file_name", func(in input) bool { return strings.ContainsAny(in.fileName, "/\\\x00") },
		"file name must not contain path separators"},
}

// Validate returns a *Error for the first rule text and fileName break, or nil.
// Lengths are counted in characters, not bytes.
func Validate(text, fileName string) error {
	in := input{
		text:        text,
		fileName:    fileName,
		textLen:     utf8.RuneCountInString(text),
		fileNameLen: utf8.RuneCountInString(fileName),
	}
	for _, r := range rules {
		if r.fails(in) {
			return &Error{Field: r.field, Message: r.message}
		}
	}
	return nil
}
