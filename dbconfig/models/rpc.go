package models

import "time"

type RPC struct {
	ID         int64
	ChainNonce uint32
	URL        string
	Provider   string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
