package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Member is a peer token instance on another chain.
type Member struct {
	ChainID uint32         `json:"chain_id" yaml:"chain_id"`
	Address common.Address `json:"address" yaml:"address"`
}

type DepositStatus uint8

const (
	DepositPending  DepositStatus = 0
	DepositApproved DepositStatus = 1
)

func (s DepositStatus) String() string {
	if s == DepositApproved {
		return "approved"
	}
	return "pending"
}

// DepositRequest moves native balance back into the omniverse ledger once the committee approves it.
type DepositRequest struct {
	Index    uint64        `json:"index"`
	Receiver PublicKey     `json:"receiver"`
	Amount   *uint256.Int  `json:"amount"`
	Status   DepositStatus `json:"status"`
}
