// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package redact

import (
	"regexp"
	"sync"
)

var defaultRules = sync.OnceValue(func() []Rule {
	return []Rule{
		// gh CLI and the GitHub API.
		{Name: "github_pat", Pattern: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`)},
		{Name: "github_fine_grained_pat", Pattern: regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`)},
		// Sheets API keys and service-account JSON.
		{Name: "google_api_key", Pattern: regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
		{Name: "google_oauth_token", Pattern: regexp.MustCompile(`ya29\.[0-9A-Za-z_-]{20,}`)},
		{Name: "pem_private_key", Pattern: regexp.MustCompile(`(?s)-----BEGIN\s+(?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----.*?(?:-----END\s+(?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----|$)`)},
		{Name: "json_private_key", Pattern: regexp.MustCompile(`"private_key"\s*:\s*"[^"]*"`)},
		// Redis passwords in connection URLs.
		{Name: "connection_string", Pattern: regexp.MustCompile(`(?i)(?:rediss?|postgres(?:ql)?|mysql|mongodb|amqp)://[^\s:@/]*:[^\s@]+@[^\s]+`)},
		{Name: "bearer_token", Pattern: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.=]{20,}`)},
		{Name: "aws_access_key", Pattern: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{Name: "slack_token", Pattern: regexp.MustCompile(`xox[bpas]-[A-Za-z0-9-]{10,}`)},
		// Credentials the action command may echo, e.g. password=hunter2.
		{Name: "credential_assignment", Pattern: regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|secret|token|api_?key|access_?key)\s*[=:]\s*[^\s&"',;]{4,}`)},
		{Name: "cookie_session", Pattern: regexp.MustCompile(`(?i)\b(?:sessionid|session_id|sid|auth_token)=[A-Za-z0-9%._-]{8,}`)},
	}
})

// DefaultRules returns the built-in rules. The slice is shared; do not
// modify it.
func DefaultRules() []Rule {
	return defaultRules()
}
