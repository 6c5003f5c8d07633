// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides the CUE parsing flow shared by module manifests and
// the runtime configuration file:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify with the schema definition
//  3. Validate and decode
//
// Errors carry the file name and a JSON-style path to the offending field
// ("requires[1].range: invalid value").
//
// # Usage
//
//	//go:embed module_schema.cue
//	var schema string
//
//	result, err := cueutil.ParseAndDecode[manifest.File](
//	    []byte(schema),
//	    data,
//	    "#Module",
//	    cueutil.WithFilename("module.cue"),
//	)
package cueutil
