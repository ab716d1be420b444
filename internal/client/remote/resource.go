package remote

import (
	"context"
	"net/http"
)

// Resource is a REST collection at Path: GET/POST on Path, PUT/DELETE on
// Path/{id}.
type Resource[T any] struct {
	c    *Client
	path string
}

// NewResource returns a Resource for path on c.
func NewResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{c: c, path: path}
}

func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	var items []T
	if err := r.c.Do(ctx, http.MethodGet, r.path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Resource[T]) Create(ctx context.Context, item T) (T, error) {
	var out T
	err := r.c.Do(ctx, http.MethodPost, r.path, item, &out)
	return out, err
}

func (r *Resource[T]) Update(ctx context.Context, id string, item T) (T, error) {
	var out T
	err := r.c.Do(ctx, http.MethodPut, r.itemPath(id), item, &out)
	return out, err
}

func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	return r.c.Do(ctx, http.MethodDelete, r.itemPath(id), nil, nil)
}

func (r *Resource[T]) itemPath(id string) string {
	return r.path + "/" + id
}
