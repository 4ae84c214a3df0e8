package types

import (
	"github.com/holiman/uint256"
)

// Account is the per-public-key record of the omniverse ledger.
type Account struct {
	PublicKey PublicKey     `json:"public_key"`
	Nonce     uint64        `json:"nonce"` // number of executed transactions
	Pending   *QueueEntry   `json:"-"`     // rebuilt from the delayed queue on restore
	Malicious bool          `json:"malicious"`
	Balance   *uint256.Int  `json:"balance"`
	History   []OmniverseTx `json:"history"` // History[n] is the executed tx with nonce n
}

// NewAccount returns the zero record for pk.
func NewAccount(pk PublicKey) *Account {
	return &Account{
		PublicKey: pk,
		Balance:   uint256.NewInt(0),
	}
}

// QueueEntry is an admitted transaction waiting out its cooldown.
type QueueEntry struct {
	Seq        uint64      `json:"seq"`
	Sender     PublicKey   `json:"sender"`
	Tx         OmniverseTx `json:"tx"`
	AdmittedAt uint64      `json:"admitted_at"`
}
