// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the markdown guides the capkit
// CLI renders next to them.
package issue
