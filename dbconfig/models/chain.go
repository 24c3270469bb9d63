package models

import (
	"time"
)

type Chain struct {
	ID            int64
	Nonce         uint32
	ChainID       uint64
	Name          string
	Type          string
	BridgeAddress string
	TxType        uint64
	StartBlock    uint64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
