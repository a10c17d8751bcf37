// SPDX-License-Identifier: MPL-2.0

// Package capability defines the capability data model shared by discovery,
// the registry and dispatch: the Capability record with its lazily resolved
// location and factory, namespace bindings, the ordered capability Map, and
// the merge algorithm with duplicate detection.
package capability
