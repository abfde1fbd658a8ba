// Package data carries the bundled survey export shown before any responses
// are stored.
package data

import (
	"bytes"
	_ "embed"
	"io"
)

//go:embed survey.csv
var surveyCSV []byte

// Survey returns a reader over the bundled semicolon-delimited export.
func Survey() io.Reader {
	return bytes.NewReader(surveyCSV)
}
