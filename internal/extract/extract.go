// Package extract pulls a structured JSON object out of free-form model
// output such as "Sure! Here you go: {...}".
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoStructuredData is returned when text holds no decodable JSON object.
var ErrNoStructuredData = errors.New("no structured data")

// Limits on the work FirstObject does for hostile or garbled text.
const (
	maxScans      = 8
	maxCandidates = 256
)

// FirstObject returns the first balanced {...} span in text that is valid
// JSON. Braces inside string literals are ignored. It never panics.
func FirstObject(text string) ([]byte, error) {
	// closers[i] is the index closing the opener at i, -1 if it never
	// closes, 0 if no scan has resolved it yet.
	closers := make([]int, len(text))
	scans, candidates := 0, 0
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		if closers[start] == 0 {
			if scans == maxScans {
				break
			}
			scans++
			matchBraces(text, start, closers)
		}
		end := closers[start]
		if end < 0 {
			continue // unbalanced, a later opener may still close
		}
		candidate := []byte(text[start : end+1])
		if json.Valid(candidate) {
			return candidate, nil
		}
		if candidates++; candidates == maxCandidates {
			break
		}
	}
	return nil, ErrNoStructuredData
}

// matchBraces scans text from the opener at start and records in closers
// where each opener it meets outside a string literal is closed. Openers
// inside a string are left for a scan of their own.
func matchBraces(text string, start int, closers []int) {
	var open []int
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if len(open) == 0 {
			// Between objects a scan starts afresh at the next opener.
			if c == '{' {
				open = append(open, i)
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			open = append(open, i)
		case '}':
			closers[open[len(open)-1]] = i
			open = open[:len(open)-1]
		}
	}
	for _, o := range open {
		closers[o] = -1
	}
}

// Decode extracts the first JSON object from text and unmarshals it into v.
func Decode(text string, v any) error {
	raw, err := FirstObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrNoStructuredData, err)
	}
	return nil
}
