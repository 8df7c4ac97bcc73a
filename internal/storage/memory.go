package storage

import (
	"sync"

	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// MemoryRepository keeps notices in a map. Used in tests and dry runs.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[string]*bidnotice.BidNoticeDetail
	order  []string
	strict bool
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*bidnotice.BidNoticeDetail)}
}

// SetStrict makes duplicate saves return a DuplicateError
func (r *MemoryRepository) SetStrict(strict bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strict = strict
}

func (r *MemoryRepository) Save(detail *bidnotice.BidNoticeDetail) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := detail.BidNoticeID
	if _, dup := r.items[id]; dup {
		if r.strict {
			return false, &DuplicateError{ID: id}
		}
		return false, nil
	}
	r.items[id] = detail
	r.order = append(r.order, id)
	return true, nil
}

func (r *MemoryRepository) SaveBatch(details []*bidnotice.BidNoticeDetail) (int, error) {
	count := 0
	for _, d := range details {
		ok, err := d2err(r.Save(d))
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// d2err filters strict-mode duplicate errors out of batch saves
func d2err(ok bool, err error) (bool, error) {
	if _, dup := err.(*DuplicateError); dup {
		return false, nil
	}
	return ok, err
}

func (r *MemoryRepository) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok
}

func (r *MemoryRepository) FindByID(id string) (*bidnotice.BidNoticeDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[id], nil
}

func (r *MemoryRepository) FindAll(limit int) ([]*bidnotice.BidNoticeDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*bidnotice.BidNoticeDetail, 0, len(r.order))
	for _, id := range r.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r.items[id])
	}
	return out, nil
}

func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *MemoryRepository) Flush() error { return nil }

func (r *MemoryRepository) Close() error { return nil }
