// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Block is the header view of an Ethereum block that the rest of the
// system consumes: enough to drive refresh scheduling and the network
// condition sensors, nothing more.
type Block struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
	GasLimit   uint64
	GasUsed    uint64
	BaseFee    *big.Int
}

// GasUtilization returns gasUsed/gasLimit in [0,1].
func (b *Block) GasUtilization() float64 {
	if b.GasLimit == 0 {
		return 0
	}
	return float64(b.GasUsed) / float64(b.GasLimit)
}

// BaseFeeGwei returns the base fee in gwei, 0 if the block predates
// EIP-1559 or the fee is absent.
func (b *Block) BaseFeeGwei() float64 {
	if b.BaseFee == nil {
		return 0
	}
	f := new(big.Float).SetInt(b.BaseFee)
	f.Quo(f, big.NewFloat(1e9))
	v, _ := f.Float64()
	return v
}

// ConnectionState represents the state of a blockchain connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// ConnectionStatus contains detailed connection information.
type ConnectionStatus struct {
	State      ConnectionState
	LastBlock  uint64
	LastUpdate time.Time
	Reconnects int
	UsingHTTP  bool // true if running on the HTTP polling fallback
}
