// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the directory of agent cards known to the server.
package agent

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-json-experiment/json/jsontext"
)

// ErrInvalidCard is returned when a registered card is not a JSON object.
var ErrInvalidCard = errors.New("agent card must be a JSON object")

// Registry stores agent cards by agent ID. Cards are kept verbatim.
type Registry struct {
	mu     sync.RWMutex
	cards  map[string]jsontext.Value
	logger *slog.Logger
}

// NewRegistry creates a new empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cards:  make(map[string]jsontext.Value),
		logger: logger,
	}
}

// Register stores card under id, replacing any previous card.
func (r *Registry) Register(id string, card jsontext.Value) error {
	if id == "" {
		return errors.New("agent ID cannot be empty")
	}
	if card.Kind() != '{' || !card.IsValid() {
		return ErrInvalidCard
	}

	card = card.Clone()
	if err := card.Compact(); err != nil {
		return ErrInvalidCard
	}

	r.mu.Lock()
	r.cards[id] = card
	r.mu.Unlock()

	r.logger.Info("agent registered", "agent_id", id)
	return nil
}

// Get returns the card registered under id.
func (r *Registry) Get(id string) (jsontext.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	card, ok := r.cards[id]
	if !ok {
		return nil, false
	}
	return card.Clone(), true
}

// List returns the registered agent IDs in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.cards))
	for id := range r.cards {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Remove deletes the card registered under id and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.cards[id]
	delete(r.cards, id)
	r.mu.Unlock()

	if ok {
		r.logger.Info("agent removed", "agent_id", id)
	}
	return ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cards)
}
