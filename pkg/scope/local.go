// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

// LocalProvider materializes symbols of namespaces the module owns from its
// content root, then from the content roots of its attached fragments.
type LocalProvider struct {
	scope *Scope
}

// Find implements SymbolProvider.
func (p *LocalProvider) Find(ctx context.Context, sym capability.Symbol, _ *Guard) (Result, error) {
	w := p.scope.Wiring()
	ns := sym.Namespace()
	if w == nil || !w.Owns(ns) || w.ImportsPackage(ns) {
		return NotFound, nil
	}

	owner := p.scope.mod
	roots := []module.ContentRoot{owner.Content()}
	for _, id := range w.Fragments {
		if frag, ok := p.scope.env.Module(id); ok {
			roots = append(roots, frag.Content())
		}
	}

	for _, root := range roots {
		if root == nil {
			continue
		}
		data, err := read(ctx, root, sym.Path())
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return NotFound, fmt.Errorf("materialize %s from module %s: %w", sym, owner.ID(), err)
		}
		p.scope.logger.Debug("symbol defined", "module", owner.ID(), "symbol", sym)
		return Result{Definition: module.NewDefinition(sym, owner.ID(), data), Found: true}, nil
	}
	return NotFound, nil
}

func read(ctx context.Context, root module.ContentRoot, path string) ([]byte, error) {
	rc, err := root.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
