package common

import (
	"strings"
)

// DefaultBatchSize is the number of rows flushed per insert batch.
const DefaultBatchSize = 100

// AutoDelimiter asks delimited text readers to guess the separator from
// the first line.
const AutoDelimiter rune = -1

// ImportOptions stores configuration options for an import call.
type ImportOptions struct {
	Encoding       string // text encoding of the source, "" for auto/UTF-8
	Delimiter      rune   // delimited text only, 0 for the format default, AutoDelimiter to guess
	BatchSize      int    // rows per flush, <= 0 means DefaultBatchSize
	Append         bool   // insert into an existing compatible table
	DeleteExisting bool   // drop existing target tables first
	CancelPerRow   bool   // poll cancellation before every row, not only per flush
	Schema         Schema // explicit schema for delimited text
}

// Batch returns the effective batch size.
func (o ImportOptions) Batch() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// ExportOptions stores configuration options for an export call.
type ExportOptions struct {
	Encoding       string
	Delimiter      rune
	BatchSize      int  // progress and cancellation granularity
	DeleteExisting bool // overwrite an existing destination
}

// Batch returns the effective batch size.
func (o ExportOptions) Batch() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// DetectDelimiter attempts to detect the delimiter from a raw line of text.
// It checks common delimiters and returns the one that produces the most fields.
// Defaults to comma if line is empty or no clear winner.
func DetectDelimiter(line string) rune {
	if line == "" {
		return ','
	}

	delimiters := []rune{',', '\t', ';', '|'}
	maxCount := 0
	winner := ','

	for _, delim := range delimiters {
		count := strings.Count(line, string(delim))
		if count > maxCount {
			maxCount = count
			winner = delim
		}
	}

	return winner
}
