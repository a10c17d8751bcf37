// SPDX-License-Identifier: MPL-2.0

// Package testutil provides test helpers that fail the test on error instead
// of returning it: environment and directory helpers (MustSetenv, MustChdir,
// MustMkdirAll) and builders for on-disk package trees (Tree, Package) used
// by discovery and registry tests.
package testutil
