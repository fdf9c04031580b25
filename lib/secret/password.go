// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNoTerminal is returned by PromptPassword when input is not a
// terminal, so echo cannot be turned off.
var ErrNoTerminal = errors.New("secret: password prompt needs a terminal")

// ReadPasswordFile reads a password from the first line of path. Only
// the line ending is stripped; other whitespace is part of the password.
func ReadPasswordFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer Zero(data)

	line := data
	if end := bytes.IndexByte(line, '\n'); end >= 0 {
		line = line[:end]
	}
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return nil, fmt.Errorf("password file %s is empty", path)
	}
	return NewFromBytes(line)
}

// PromptPassword writes prompt to out and reads one line from input
// with echo disabled.
func PromptPassword(input *os.File, out io.Writer, prompt string) (*Buffer, error) {
	descriptor := int(input.Fd())
	if !term.IsTerminal(descriptor) {
		return nil, ErrNoTerminal
	}
	fmt.Fprint(out, prompt)
	password, err := term.ReadPassword(descriptor)
	fmt.Fprintln(out)
	if err != nil {
		Zero(password)
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return NewFromBytes(password)
}
