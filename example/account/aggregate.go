package main

import (
	"encoding/json"
	"fmt"

	ges "github.com/mkirchner/evstore"
)

// Account is the aggregate root that enforces domain rules and emits
// events. The bookkeeping (dispatch, version, pending buffer) comes from
// the embedded ges.Base; Account itself only holds domain state and
// business methods.
type Account struct {
	ges.Base
	owner   string
	balance int64
	opened  bool
}

// NewAccount constructs an empty Account wired with its event handlers,
// ready for Open (new aggregate) or RestoreFrom/Replay (existing one).
func NewAccount(id string) *Account {
	a := &Account{}
	a.Init("Account", id)
	a.Register("AccountOpened", func(e ges.Event) {
		ev := e.(AccountOpened)
		a.SetAggregateID(ev.AccountID)
		a.owner = ev.Owner
		a.balance = ev.Initial
		a.opened = true
	})
	a.Register("MoneyDeposited", func(e ges.Event) {
		a.balance += e.(MoneyDeposited).Amount
	})
	a.Register("MoneyWithdrawn", func(e ges.Event) {
		a.balance -= e.(MoneyWithdrawn).Amount
	})
	return a
}

// Balance returns the account's current balance.
func (a *Account) Balance() int64 { return a.balance }

// Open records the account's creation. Must be called on a fresh
// (version-0) Account.
func (a *Account) Open(owner string, initial int64) error {
	if a.opened {
		return fmt.Errorf("account already opened")
	}
	if initial < 0 {
		return fmt.Errorf("initial balance cannot be negative")
	}
	return a.Raise(AccountOpened{AccountID: a.AggregateID(), Owner: owner, Initial: initial, Currency: "USD"})
}

// Deposit increases the balance by amount.
func (a *Account) Deposit(amount int64) error {
	if !a.opened {
		return fmt.Errorf("account not opened")
	}
	if amount <= 0 {
		return fmt.Errorf("invalid deposit amount")
	}
	return a.Raise(MoneyDeposited{Amount: amount})
}

// Withdraw decreases the balance by amount, rejecting an overdraft.
func (a *Account) Withdraw(amount int64) error {
	if !a.opened {
		return fmt.Errorf("account not opened")
	}
	if amount <= 0 {
		return fmt.Errorf("invalid withdrawal amount")
	}
	if amount > a.balance {
		return fmt.Errorf("insufficient balance: have %d, want to withdraw %d", a.balance, amount)
	}
	return a.Raise(MoneyWithdrawn{Amount: amount})
}

// snapshotPayload is the JSON shape persisted for an Account snapshot.
type snapshotPayload struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
	Opened  bool   `json:"opened"`
}

// SnapshotPayload serializes the account's current state for snapshotting.
func (a *Account) SnapshotPayload() ([]byte, error) {
	return json.Marshal(snapshotPayload{Owner: a.owner, Balance: a.balance, Opened: a.opened})
}

// RestoreFrom rehydrates state from a snapshot and sets the version to the
// snapshot's, per ges.Aggregate.
func (a *Account) RestoreFrom(snap ges.Snapshot) error {
	var p snapshotPayload
	if err := json.Unmarshal(snap.Payload, &p); err != nil {
		return fmt.Errorf("decode account snapshot: %w", err)
	}
	a.owner = p.Owner
	a.balance = p.Balance
	a.opened = p.Opened
	a.SetVersion(snap.Version)
	return nil
}

var _ ges.Aggregate = (*Account)(nil)
