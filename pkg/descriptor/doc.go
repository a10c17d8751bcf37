// SPDX-License-Identifier: MPL-2.0

// Package descriptor reads capability descriptor files and expands them into
// capability maps: plain entries, metadata objects, flattened groups,
// aggregation lists and nested subfolders.
//
// A descriptor is a JSON document named capability.json by default:
//
//	{
//	  "greet": "./greet",
//	  "store": {"entryPoint": "./store", "env": "prod"},
//	  "math": {"add": "./add", "sub": {"entryPoint": "./sub", "version": "2.0.0"}}
//	}
//
// declares greet, store, math/add and math/sub. A list document such as
// ["./common", "./extra"] aggregates the listed folders instead.
package descriptor
