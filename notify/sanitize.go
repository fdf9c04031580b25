// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold decomposes, drops combining marks and recomposes, turning
// "café" into "cafe".
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Sanitize prepares a message body for a notification backend. It
// replaces invalid UTF-8, strips terminal escape sequences, drops
// control characters other than newline and tab, and normalizes to NFC.
// With asciiOnly set, accents are folded away and any remaining
// non-ASCII rune becomes '?'.
func Sanitize(body string, asciiOnly bool) string {
	cleaned := strings.ToValidUTF8(body, "\uFFFD")
	cleaned = ansi.Strip(cleaned)
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	cleaned = norm.NFC.String(cleaned)

	if !asciiOnly {
		return cleaned
	}
	folded, _, err := transform.String(asciiFold, cleaned)
	if err != nil {
		folded = cleaned
	}
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '?'
		}
		return r
	}, folded)
}

// Truncate shortens s to at most limit runes, counting the ellipsis
// (or "..." when asciiOnly) that marks the cut.
func Truncate(s string, limit int, asciiOnly bool) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	marker := "…"
	if asciiOnly {
		marker = "..."
	}
	keep := limit - utf8.RuneCountInString(marker)
	if keep <= 0 {
		return string([]rune(marker)[:limit])
	}
	runeCount := 0
	for index := range s {
		if runeCount == keep {
			return s[:index] + marker
		}
		runeCount++
	}
	return s
}
