// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message: the command has already written its own output.
// "pdw decrypt" uses it to exit 2 on a denial and 3 on a timeout so
// scripts can tell them apart.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors.
func (e *ExitError) ExitCode() int {
	return e.Code
}
