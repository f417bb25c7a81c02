package main

import (
	"context"
	"sync"

	ges "github.com/mkirchner/evstore"
)

// BalanceProjection maintains an in-memory read model of every account's
// balance, keyed by account id. It demonstrates projection.Projection
// against the same Registry the write path uses.
type BalanceProjection struct {
	registry *ges.Registry

	mu       sync.RWMutex
	balances map[string]int64
}

// NewBalanceProjection creates an empty BalanceProjection.
func NewBalanceProjection(registry *ges.Registry) *BalanceProjection {
	return &BalanceProjection{registry: registry, balances: make(map[string]int64)}
}

func (p *BalanceProjection) Name() string { return "account_balances" }

// Apply decodes env and folds it into the balance read model.
func (p *BalanceProjection) Apply(_ context.Context, env ges.EventEnvelope) error {
	event, err := p.registry.Decode(env.EventType, env.SchemaVersion, env.Payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch e := event.(type) {
	case AccountOpened:
		p.balances[env.AggregateID] = e.Initial
	case MoneyDeposited:
		p.balances[env.AggregateID] += e.Amount
	case MoneyWithdrawn:
		p.balances[env.AggregateID] -= e.Amount
	}
	return nil
}

// Reset truncates the in-memory read model.
func (p *BalanceProjection) Reset(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = make(map[string]int64)
	return nil
}

// Balance returns the current known balance for an account id.
func (p *BalanceProjection) Balance(accountID string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[accountID]
}
