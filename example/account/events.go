package main

// AccountOpenedV1 is the original shape of the account-opened event,
// before currency tracking was added. It is only ever decoded, never
// produced by current code — the upcaster registered by NewUpcasters in
// codec.go lifts it to AccountOpened.
type AccountOpenedV1 struct {
	AccountID string
	Owner     string
	Initial   int64
}

func (AccountOpenedV1) EventType() string  { return "AccountOpened" }
func (AccountOpenedV1) SchemaVersion() int { return 1 }

// AccountOpened is emitted when a new account is created.
type AccountOpened struct {
	AccountID string
	Owner     string
	Initial   int64
	Currency  string
}

func (AccountOpened) EventType() string  { return "AccountOpened" }
func (AccountOpened) SchemaVersion() int { return 2 }

// MoneyDeposited is emitted when funds are deposited to an account.
type MoneyDeposited struct {
	Amount int64
}

func (MoneyDeposited) EventType() string { return "MoneyDeposited" }

// MoneyWithdrawn is emitted when funds are withdrawn from an account.
type MoneyWithdrawn struct {
	Amount int64
}

func (MoneyWithdrawn) EventType() string { return "MoneyWithdrawn" }
