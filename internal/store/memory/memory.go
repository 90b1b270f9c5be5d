// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wneessen/mylocations/internal/store"
)

var _ store.RecordStore = (*Store)(nil)

var errNilRecord = errors.New("record is nil")

// Store keeps records in memory.
type Store struct {
	mu      sync.RWMutex
	records []store.Record
}

func New() *Store {
	return &Store{}
}

func (s *Store) Create(ctx context.Context, record *store.Record) error {
	if record == nil {
		return &store.StorageError{Op: "create", Err: errNilRecord}
	}
	if err := ctx.Err(); err != nil {
		return &store.StorageError{Op: "create", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	return nil
}

// List returns the records ordered by date.
func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &store.StorageError{Op: "list", Err: err}
	}
	s.mu.RLock()
	records := make([]store.Record, len(s.records))
	copy(records, s.records)
	s.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records, nil
}
