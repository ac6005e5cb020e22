// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	defer func(commit, dirty, buildTime string) {
		GitCommit, GitDirty, BuildTime = commit, dirty, buildTime
	}(GitCommit, GitDirty, BuildTime)

	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-10-18T00:00:00Z"
	if got, want := Info(), Version+" (abc1234-dirty, 2026-10-18T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "false"
	if strings.Contains(Info(), "-dirty") {
		t.Errorf("Info() = %q, marked dirty", Info())
	}
	if !strings.Contains(Full(), runtime.Version()) {
		t.Errorf("Full() = %q lacks the Go version", Full())
	}
	if Short() != Version || Commit() != "abc1234" {
		t.Errorf("Short() = %q, Commit() = %q", Short(), Commit())
	}
}
