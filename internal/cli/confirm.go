// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation for destructive commands.
//
// One rule for every delete:
//  1. --yes (or --confirm) proceeds without prompting
//  2. --json requires --yes; JSON mode never prompts
//  3. stdin that is not a terminal requires --yes
//  4. otherwise ask and accept y/yes

package cli

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfirmed is returned when the user answers no.
var ErrNotConfirmed = errors.New("cancelled")

// confirmed reports whether the destructive action may proceed.
func (e *Env) confirmed(args *ArgParser, action string) (bool, error) {
	if args.BoolFlag("yes", "y", "confirm") {
		return true, nil
	}
	if e.JSON {
		return false, &ValidationError{Field: "confirmation", Reason: "use --yes to " + action + " in JSON mode"}
	}
	if !e.interactive() {
		return false, &ValidationError{Field: "confirmation", Reason: "stdin is not a terminal; use --yes to " + action}
	}
	return e.ask(fmt.Sprintf("Are you sure you want to %s? [y/N]: ", action))
}

// ask prints prompt and reads a yes/no answer. Anything but y/yes is no.
func (e *Env) ask(prompt string) (bool, error) {
	fmt.Fprint(e.Err, WarningStyle.Render(prompt))
	line, err := e.input.ReadLine()
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes", nil
}

// confirmOrCancel wraps confirmed and turns "no" into ErrNotConfirmed so
// handlers can return early with a single check.
func (e *Env) confirmOrCancel(args *ArgParser, action string) error {
	ok, err := e.confirmed(args, action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}
