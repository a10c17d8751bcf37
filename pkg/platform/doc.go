// SPDX-License-Identifier: MPL-2.0

// Package platform holds the few OS-specific rules capkit needs: GOOS names
// and the file names Windows refuses to create.
package platform
