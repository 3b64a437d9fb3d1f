package domain

import (
	"fmt"
	"iter"
)

// Paged is a lazily loaded, fixed-length sequence fetched in batches. Pages are
// loaded on first access and cached. A Paged obtained inside a transaction or
// query body must not be used after the body returns.
type Paged[T any] struct {
	total int
	batch int
	load  func(offset, limit int) ([]T, error)
	pages map[int][]T
}

// NewPaged builds a Paged of total elements loaded batchSize at a time.
func NewPaged[T any](total, batchSize int, load func(offset, limit int) ([]T, error)) *Paged[T] {
	if batchSize <= 0 {
		batchSize = total
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Paged[T]{total: total, batch: batchSize, load: load, pages: make(map[int][]T)}
}

// Len returns the number of elements.
func (p *Paged[T]) Len() int { return p.total }

// BatchSize returns the page size used for loading.
func (p *Paged[T]) BatchSize() int { return p.batch }

// At returns the element at index i, loading its page when needed.
func (p *Paged[T]) At(i int) (T, error) {
	var zero T
	if i < 0 || i >= p.total {
		return zero, fmt.Errorf("index %d out of range [0,%d)", i, p.total)
	}
	page := i / p.batch
	items, ok := p.pages[page]
	if !ok {
		offset := page * p.batch
		limit := p.batch
		if offset+limit > p.total {
			limit = p.total - offset
		}
		loaded, err := p.load(offset, limit)
		if err != nil {
			return zero, err
		}
		items = loaded
		p.pages[page] = items
	}
	idx := i - page*p.batch
	if idx >= len(items) {
		return zero, fmt.Errorf("page %d shorter than expected: %d < %d", page, len(items), idx+1)
	}
	return items[idx], nil
}

// All iterates every element in order, stopping after the first load error.
func (p *Paged[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for i := 0; i < p.total; i++ {
			v, err := p.At(i)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// MapPaged adapts a Paged to a different element type.
func MapPaged[T, U any](src *Paged[T], fn func(T) (U, error)) *Paged[U] {
	return NewPaged(src.total, src.batch, func(offset, limit int) ([]U, error) {
		out := make([]U, 0, limit)
		for i := offset; i < offset+limit; i++ {
			v, err := src.At(i)
			if err != nil {
				return nil, err
			}
			u, err := fn(v)
			if err != nil {
				return nil, err
			}
			out = append(out, u)
		}
		return out, nil
	})
}
