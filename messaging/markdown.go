// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// The goldmark instance is configured once; Convert keeps per-call
// state in its arguments and is safe for concurrent use.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.Strikethrough,
				extension.Linkify,
				extension.Table,
			),
		)
	})
	return markdownInstance
}

// NewMarkdownMessage creates a text message from markdown source. When
// the source contains markup, FormattedBody carries the HTML rendering
// and Body keeps the source text. Raw HTML in the source is not passed
// through. Plain text produces the same content as NewTextMessage.
func NewMarkdownMessage(body string) MessageContent {
	content := NewTextMessage(body)

	source := []byte(body)
	document := markdown().Parser().Parse(text.NewReader(source))
	if isPlainText(document) {
		return content
	}

	var rendered bytes.Buffer
	if err := markdown().Renderer().Render(&rendered, source, document); err != nil {
		return content
	}
	content.Format = HTMLFormat
	content.FormattedBody = strings.TrimRight(rendered.String(), "\n")
	return content
}

// isPlainText reports whether document is at most one paragraph of
// unstyled text, which renders to nothing an HTML body would add.
func isPlainText(document ast.Node) bool {
	if document.ChildCount() == 0 {
		return true
	}
	if document.ChildCount() > 1 {
		return false
	}
	paragraph := document.FirstChild()
	if paragraph.Kind() != ast.KindParagraph {
		return false
	}
	for child := paragraph.FirstChild(); child != nil; child = child.NextSibling() {
		if child.Kind() != ast.KindText {
			return false
		}
	}
	return true
}
