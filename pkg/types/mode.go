// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package types

import (
	"strings"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// Mode records how an invocation executed.
type Mode string

const (
	// ModeDryRun simulates actions without side effects.
	ModeDryRun Mode = "dry-run"
	// ModeGradual is a live run admitted through the gradual gate.
	ModeGradual Mode = "gradual"
	// ModeLive performs real, quota-consuming actions.
	ModeLive Mode = "live"
	// ModeSuspended is an invocation blocked by an active suspension window.
	ModeSuspended Mode = "suspended"
	// ModeError is an invocation aborted by a top-level fault.
	ModeError Mode = "error"
)

// Modes lists every known mode in a stable order.
var Modes = []Mode{ModeDryRun, ModeGradual, ModeLive, ModeSuspended, ModeError}

// Valid reports whether m is a recognized execution mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeDryRun, ModeGradual, ModeLive, ModeSuspended, ModeError:
		return true
	default:
		return false
	}
}

// ParseMode parses a case-insensitive string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(s))
	if !m.Valid() {
		return "", pgerr.Errorf(pgerr.CodeConfigValidateInvalidValue,
			"invalid execution mode: %q", s)
	}
	return m, nil
}
