// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/postgate-dev/postgate/internal/store/sqlite"
)

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}

func openStore(t *testing.T) *sqlite.DocumentStore {
	t.Helper()
	s, err := sqlite.NewDocumentStore(testDBPath(t, "state"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
