// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// StateDir creates a temporary wallet root with state/ and blobs/
// subdirectories (mode 0700) and returns its path. The directory is
// removed when the test completes.
func StateDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"state", "blobs"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0700); err != nil {
			t.Fatalf("creating %s directory: %v", name, err)
		}
	}
	return root
}
