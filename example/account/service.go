package main

import (
	"context"
	"fmt"

	ges "github.com/mkirchner/evstore"
	"github.com/mkirchner/evstore/internal/metrics"
	"github.com/mkirchner/evstore/repository"
)

// AccountService orchestrates command handling on top of a generic
// repository.Repository[*Account].
type AccountService struct {
	repo *repository.Repository[*Account]
}

// NewAccountService wires a repository backed by store/snapshots/registry.
func NewAccountService(
	store ges.EventStore,
	snapshots ges.SnapshotStore,
	registry *ges.Registry,
	upcasters *ges.UpcasterChain,
	cfg repository.Config,
) *AccountService {
	repo := repository.New[*Account](store, snapshots, registry, upcasters, "Account", NewAccount, cfg, nil)
	return &AccountService{repo: repo}
}

// WithMetrics reports repository-level metrics (snapshot writes) through reg.
func (s *AccountService) WithMetrics(reg *metrics.Registry) *AccountService {
	s.repo.WithMetrics(reg)
	return s
}

// Handle executes a command end-to-end: load-or-create → domain method →
// append, retrying on conflict per repository.Config.
func (s *AccountService) Handle(ctx context.Context, tenantID string, cmd any) error {
	id := extractAccountID(cmd)
	if id == "" {
		return fmt.Errorf("command %T carries no account id", cmd)
	}

	_, err := s.repo.Save(ctx, tenantID, id, true, func(a *Account) error {
		switch c := cmd.(type) {
		case OpenAccountCommand:
			return a.Open(c.Owner, c.Initial)
		case DepositCommand:
			return a.Deposit(c.Amount)
		case WithdrawCommand:
			return a.Withdraw(c.Amount)
		default:
			return fmt.Errorf("unknown command type %T", cmd)
		}
	})
	return err
}

// Load reconstructs an Account for read-only inspection.
func (s *AccountService) Load(ctx context.Context, tenantID, id string) (*Account, error) {
	return s.repo.Load(ctx, tenantID, id)
}

func extractAccountID(cmd any) string {
	switch c := cmd.(type) {
	case OpenAccountCommand:
		return c.AccountID
	case DepositCommand:
		return c.AccountID
	case WithdrawCommand:
		return c.AccountID
	default:
		return ""
	}
}
