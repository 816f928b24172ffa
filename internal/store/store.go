// Package store provides the persistence substrate: a durable mapping from
// collection name to a serialized sequence of records. A collection is loaded
// whole and overwritten whole on every save; there are no partial patches and
// no multi-collection transactions.
package store

import (
	"context"
	"errors"
)

// ErrStorageUnavailable wraps backend I/O failures so callers can distinguish
// them from domain conditions. No implicit retry happens at this layer.
var ErrStorageUnavailable = errors.New("storage unavailable")

// KV is the collection-keyed store contract. Load returns (nil, nil) for a
// collection that has never been saved.
type KV interface {
	Load(ctx context.Context, collection string) ([]byte, error)
	Save(ctx context.Context, collection string, data []byte) error
}
