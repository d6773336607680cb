// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNoTerminal is returned by Prompt when input is not a terminal.
var ErrNoTerminal = errors.New("secret: no terminal to prompt on")

// Prompt writes label to output and reads a password from input with
// echo disabled.
func Prompt(input *os.File, output io.Writer, label string) (*Password, error) {
	descriptor := int(input.Fd())
	if !term.IsTerminal(descriptor) {
		return nil, ErrNoTerminal
	}
	fmt.Fprint(output, label)
	typed, err := term.ReadPassword(descriptor)
	fmt.Fprintln(output)
	if err != nil {
		Zero(typed)
		return nil, fmt.Errorf("secret: reading password: %w", err)
	}
	return FromBytes(typed)
}

// ReadFile reads a password from path, or the first line of standard
// input when path is "-". Line endings are stripped; other whitespace
// is part of the password.
func ReadFile(path string, stdin io.Reader) (*Password, error) {
	var data []byte
	if path == "-" {
		reader := bufio.NewReader(stdin)
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			Zero(line)
			return nil, fmt.Errorf("secret: reading stdin: %w", err)
		}
		data = line
	} else {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("secret: %w", err)
		}
		data = content
	}
	defer Zero(data)

	line, _, _ := bytes.Cut(data, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return nil, ErrEmpty
	}
	return FromBytes(line)
}
