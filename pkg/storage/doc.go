// SPDX-License-Identifier: MPL-2.0

// Package storage provides module.Storage implementations that hand out
// content roots for install locations.
//
//   - [FS] serves a location as a directory of an afero filesystem; a symbol
//     "com.acme.util.Helper" is read from "com/acme/util/Helper" below it.
//   - [SQLite] keeps content in a SQLite database, deduplicated by SHA-256
//     digest, with a (location, path) index.
//
// [Open] selects a backend by [Driver] name, as configured by storage.driver.
package storage
