// Package sniffer detects the field delimiter of an uploaded sales CSV.
// Sniffing never fails: an ambiguous header still yields a deterministic delimiter.
package sniffer

import (
	"strings"
)

// Candidate delimiters. Semicolon wins ties because the cleaned output and the
// spreadsheets it targets use the decimal-comma convention.
const (
	Comma     rune = ','
	Semicolon rune = ';'

	// Default is used when a line contains neither candidate.
	Default = Comma
)

// Sniff counts the candidate delimiters in line and returns the more frequent one.
func Sniff(line string) rune {
	commas := strings.Count(line, string(Comma))
	semicolons := strings.Count(line, string(Semicolon))

	switch {
	case commas == 0 && semicolons == 0:
		return Default
	case semicolons >= commas:
		return Semicolon
	default:
		return Comma
	}
}

// Alternate returns the other candidate delimiter.
func Alternate(d rune) rune {
	if d == Semicolon {
		return Comma
	}
	return Semicolon
}

// HeaderLine returns the first non-blank line of text with any byte-order mark
// and trailing carriage return removed.
func HeaderLine(text string) string {
	first := true
	for text != "" {
		line := text
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			text = ""
		}

		line = cleanLine(line, first)
		first = false
		if line != "" {
			return line
		}
	}
	return ""
}

// Detect is a shorthand for Sniff(HeaderLine(text)).
func Detect(text string) rune {
	return Sniff(HeaderLine(text))
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}
