// SPDX-License-Identifier: MPL-2.0

package module

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/invowk/modrt/pkg/capability"
)

type (
	// Definition is a materialized symbol. Scopes hand out the same *Definition
	// for every lookup of a name once it has been defined.
	Definition struct {
		// Name is the fully-qualified symbol.
		Name capability.Symbol
		// Owner is the module whose content the bytes were read from. For
		// fragment content this is the host.
		Owner ID
		// Data holds the symbol's bytes.
		Data []byte
		// Digest is the hex SHA-256 of Data.
		Digest string
	}

	// ContentRoot streams the bytes stored under a module for a symbol path.
	// Open returns an error satisfying errors.Is(err, fs.ErrNotExist) when
	// nothing is stored at path.
	ContentRoot interface {
		Open(ctx context.Context, path string) (io.ReadCloser, error)
	}

	// Storage hands out content roots for install locations.
	Storage interface {
		Root(ctx context.Context, location string) (ContentRoot, error)
	}
)

// NewDefinition returns a definition for name owned by owner with its digest computed.
func NewDefinition(name capability.Symbol, owner ID, data []byte) *Definition {
	sum := sha256.Sum256(data)
	return &Definition{Name: name, Owner: owner, Data: data, Digest: hex.EncodeToString(sum[:])}
}
