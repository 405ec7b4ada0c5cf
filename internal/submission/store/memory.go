// Package store persists submission receipts.
package store

import (
	"context"
	"sync"

	"guildledger/internal/submission/models"
	"guildledger/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	receipts map[string]*models.Receipt
}

func NewInMemory() *InMemory {
	return &InMemory{receipts: make(map[string]*models.Receipt)}
}

func (s *InMemory) Create(_ context.Context, r *models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[r.Hash]; ok {
		return sentinel.ErrAlreadyUsed
	}
	cp := *r
	s.receipts[r.Hash] = &cp
	return nil
}

func (s *InMemory) Get(_ context.Context, hash string) (*models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Transition replaces the stored receipt with next only while its status is
// still from; otherwise it returns ErrInvalidState.
func (s *InMemory) Transition(_ context.Context, next *models.Receipt, from models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.receipts[next.Hash]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Status != from {
		return sentinel.ErrInvalidState
	}
	cp := *next
	s.receipts[next.Hash] = &cp
	return nil
}
