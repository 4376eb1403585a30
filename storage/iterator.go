package storage

import (
	"context"
	"sort"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// listFunc produces a full listing snapshot. Iterators re-run it on Restart so
// a restarted sequence observes the backend's current state.
type listFunc func(ctx context.Context) ([]interfaces.ObjectInfo, error)

// objectIterator implements interfaces.ObjectIterator over a snapshot produced
// by a listFunc. It is not safe for concurrent use.
type objectIterator struct {
	list   listFunc
	items  []interfaces.ObjectInfo
	loaded bool
	idx    int
	err    error
}

func newObjectIterator(ctx context.Context, list listFunc) (*objectIterator, error) {
	it := &objectIterator{list: list}
	items, err := list(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	it.items = items
	it.loaded = true
	return it, nil
}

// Next returns the next listing entry, or false once the sequence is
// exhausted, the context is cancelled, or a reload after Restart failed.
func (it *objectIterator) Next(ctx context.Context) (interfaces.ObjectInfo, bool) {
	if it.err != nil {
		return interfaces.ObjectInfo{}, false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return interfaces.ObjectInfo{}, false
	}
	if !it.loaded {
		items, err := it.list(ctx)
		if err != nil {
			it.err = err
			return interfaces.ObjectInfo{}, false
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
		it.items = items
		it.loaded = true
	}
	if it.idx >= len(it.items) {
		return interfaces.ObjectInfo{}, false
	}
	info := it.items[it.idx]
	it.idx++
	return info, true
}

// Err reports the first error encountered while iterating.
func (it *objectIterator) Err() error {
	return it.err
}

// Restart resets the iterator to the beginning. The listing is re-fetched on
// the next call to Next.
func (it *objectIterator) Restart() {
	it.idx = 0
	it.loaded = false
	it.items = nil
	it.err = nil
}

// CollectObjects drains an iterator into a slice. It is a convenience for the
// lifecycle and backup batch paths, which operate on full listings.
func CollectObjects(ctx context.Context, it interfaces.ObjectIterator) ([]interfaces.ObjectInfo, error) {
	var out []interfaces.ObjectInfo
	for {
		info, ok := it.Next(ctx)
		if !ok {
			break
		}
		out = append(out, info)
	}
	return out, it.Err()
}
