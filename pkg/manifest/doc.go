// SPDX-License-Identifier: MPL-2.0

// Package manifest reads module.cue manifests into module descriptors.
//
// A manifest is validated against the embedded #Module schema before it is
// decoded, so structural errors carry the offending field path:
//
//	name:    "com.acme.app"
//	version: "1.2.0"
//	activator: "app"
//	exports: [{namespace: "com.acme.app.api", version: "1.2.0"}]
//	requires: [
//		{namespace: "com.acme.util", range: "[1.0.0,2.0.0)"},
//		{kind: "module", namespace: "com.acme.core", reexport: true},
//		{namespace: "com.acme.*", dynamic: true},
//	]
//
// A directory holding a module.cue is a unit: its location is the directory
// and its content (symbol bytes) lives below it.
package manifest
