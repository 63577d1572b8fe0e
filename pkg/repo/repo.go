// Package repo defines the generic Repository interface and list options.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no node matches the requested ID.
var ErrNotFound = errors.New("not found")

// Repository is a generic CRUD interface over node-shaped entities.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Create(ctx context.Context, entity T) (T, error)
	Merge(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination and property filtering for List operations.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}
