// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package alert

import "context"

// SetRunFunc replaces the command runner (for testing).
func (g *GitHubSink) SetRunFunc(fn func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	g.run = fn
}
