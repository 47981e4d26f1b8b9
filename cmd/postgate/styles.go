// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/postgate-dev/postgate/internal/admission"
	"github.com/postgate-dev/postgate/pkg/health"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

func statusStyle(s health.Status) lipgloss.Style {
	switch s {
	case health.StatusHealthy:
		return successStyle
	case health.StatusWarning:
		return warnStyle
	default:
		return errorStyle
	}
}

func verdictStyle(v admission.Verdict) lipgloss.Style {
	switch v {
	case admission.VerdictLive:
		return successStyle
	case admission.VerdictDryRunOnly:
		return warnStyle
	default:
		return errorStyle
	}
}
