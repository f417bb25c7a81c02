package main

import ges "github.com/mkirchner/evstore"

// NewRegistry wires the codec for every event type/version this example
// produces or must still be able to decode.
func NewRegistry() *ges.Registry {
	r := ges.NewRegistry()
	r.Register("AccountOpened", 1, ges.JSONCodec[AccountOpenedV1]())
	r.Register("AccountOpened", 2, ges.JSONCodec[AccountOpened]())
	r.Register("MoneyDeposited", 1, ges.JSONCodec[MoneyDeposited]())
	r.Register("MoneyWithdrawn", 1, ges.JSONCodec[MoneyWithdrawn]())
	return r
}

// NewUpcasters wires the chain that lifts a v1 AccountOpened (no currency
// field) forward to v2 (defaults Currency to USD).
func NewUpcasters(enabled bool) *ges.UpcasterChain {
	c := ges.NewUpcasterChain(enabled)
	c.Register(ges.Upcaster{
		EventType:     "AccountOpened",
		SourceVersion: 1,
		TargetVersion: 2,
		Transform: func(e ges.Event) (ges.Event, error) {
			v1 := e.(AccountOpenedV1)
			return AccountOpened{AccountID: v1.AccountID, Owner: v1.Owner, Initial: v1.Initial, Currency: "USD"}, nil
		},
	})
	return c
}
