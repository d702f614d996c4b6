// Package storagesvc provides the object store backends.
package storagesvc

import (
	"context"
	"fmt"

	"github.com/trezcool/aula/core"
)

// New builds the object store selected by conf.Storage.Backend.
func New(ctx context.Context, conf *core.Config) (core.ObjectStore, error) {
	switch conf.Storage.Backend {
	case "http":
		return NewHTTPStore(conf), nil
	case "b2":
		return NewB2Store(ctx, conf)
	case "memory", "":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", conf.Storage.Backend)
}
