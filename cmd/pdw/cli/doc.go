// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the pdw tool: a tree of
// [Command] values dispatched by name, pflag-based flag parsing bound
// to tagged parameter structs by [BindFlags], and the shared wiring
// that turns a loaded configuration into a wallet client ([Open]).
//
// Commands print results to stdout and diagnostics to stderr through
// the structured logger from [NewCommandLogger].
package cli
