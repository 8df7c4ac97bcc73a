package storage

import (
	"github.com/nurimarket/bidwatch/pkg/bidnotice"
)

// MultiRepository fans writes out to several repositories (e.g. JSON and
// CSV together). The first repository is the primary: reads, counts and the
// duplicate verdict come from it.
type MultiRepository struct {
	repos []Repository
}

// NewMultiRepository wraps one or more repositories
func NewMultiRepository(repos ...Repository) *MultiRepository {
	return &MultiRepository{repos: repos}
}

func (m *MultiRepository) Save(detail *bidnotice.BidNoticeDetail) (bool, error) {
	written, err := m.repos[0].Save(detail)
	if err != nil {
		return written, err
	}
	for _, r := range m.repos[1:] {
		if _, err := r.Save(detail); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (m *MultiRepository) SaveBatch(details []*bidnotice.BidNoticeDetail) (int, error) {
	count, err := m.repos[0].SaveBatch(details)
	if err != nil {
		return count, err
	}
	for _, r := range m.repos[1:] {
		if _, err := r.SaveBatch(details); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (m *MultiRepository) Exists(id string) bool {
	return m.repos[0].Exists(id)
}

func (m *MultiRepository) FindByID(id string) (*bidnotice.BidNoticeDetail, error) {
	return m.repos[0].FindByID(id)
}

func (m *MultiRepository) FindAll(limit int) ([]*bidnotice.BidNoticeDetail, error) {
	return m.repos[0].FindAll(limit)
}

func (m *MultiRepository) Count() int {
	return m.repos[0].Count()
}

func (m *MultiRepository) Flush() error {
	for _, r := range m.repos {
		if err := r.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiRepository) Close() error {
	var firstErr error
	for _, r := range m.repos {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
