// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/invowk/modrt/pkg/module"
)

const (
	// DriverFS stores module content as directories on the host filesystem.
	DriverFS Driver = "fs"
	// DriverSQLite stores module content in a SQLite database file.
	DriverSQLite Driver = "sqlite"
)

var (
	// ErrUnknownLocation is returned when a storage has nothing for a location.
	ErrUnknownLocation = errors.New("unknown storage location")
	// ErrInvalidDriver is the sentinel error wrapped by InvalidDriverError.
	ErrInvalidDriver = errors.New("invalid storage driver")
)

type (
	// Driver names a storage backend.
	Driver string

	// InvalidDriverError is returned when a Driver value is not recognized.
	InvalidDriverError struct {
		Value Driver
	}

	// Backend is a module.Storage that holds resources until closed.
	Backend interface {
		module.Storage
		io.Closer
	}
)

// Error implements the error interface.
func (e *InvalidDriverError) Error() string {
	return fmt.Sprintf("invalid storage driver %q (valid: fs, sqlite)", e.Value)
}

// Unwrap returns ErrInvalidDriver for errors.Is() compatibility.
func (e *InvalidDriverError) Unwrap() error { return ErrInvalidDriver }

// Validate returns nil if the Driver is one of the defined backends.
func (d Driver) Validate() error {
	switch d {
	case DriverFS, DriverSQLite:
		return nil
	default:
		return &InvalidDriverError{Value: d}
	}
}

// Open returns the backend for driver. For DriverFS, path is the base
// directory locations are resolved against; for DriverSQLite it is the
// database file.
func Open(ctx context.Context, driver Driver, path string) (Backend, error) {
	if err := driver.Validate(); err != nil {
		return nil, err
	}
	switch driver {
	case DriverSQLite:
		return OpenSQLite(ctx, path)
	default:
		return NewFS(afero.NewOsFs(), path), nil
	}
}
