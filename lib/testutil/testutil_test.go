// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestUniqueID(t *testing.T) {
	first := UniqueID("ks")
	second := UniqueID("ks")
	if first == second {
		t.Fatalf("UniqueID returned %q twice", first)
	}
	if !strings.HasPrefix(first, "ks-") {
		t.Errorf("UniqueID = %q, want ks- prefix", first)
	}
}

func TestRequireEventually(t *testing.T) {
	var counter atomic.Int32
	go func() {
		for range 3 {
			counter.Add(1)
		}
	}()
	RequireEventually(t, func() bool { return counter.Load() == 3 }, 5*time.Second, "counter reached 3")
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 42
	if got := RequireReceive(t, ch, 5*time.Second, "value"); got != 42 {
		t.Errorf("RequireReceive = %d, want 42", got)
	}
}

func TestStateDir(t *testing.T) {
	root := StateDir(t)
	for _, name := range []string{"state", "blobs"} {
		info, err := os.Stat(filepath.Join(root, name))
		if err != nil {
			t.Fatalf("Stat(%s): %v", name, err)
		}
		if !info.IsDir() || info.Mode().Perm() != 0700 {
			t.Errorf("%s mode = %v", name, info.Mode())
		}
	}
}
