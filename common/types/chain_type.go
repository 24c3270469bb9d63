package types

import "strings"

// ChainType selects the adapter plugin of a chain.
type ChainType string

const (
	// EVM covers Ethereum-compatible chains.
	EVM ChainType = "EVM"
	// SOLANA is the Solana cluster.
	SOLANA ChainType = "SOLANA"
	// UNKNOWN is any type without an adapter.
	UNKNOWN ChainType = "UNKNOWN"
)

func (t ChainType) String() string {
	return string(t)
}

// ParseChainType maps s, in any case, onto a ChainType. Unrecognized values give UNKNOWN.
func ParseChainType(s string) ChainType {
	switch t := ChainType(strings.ToUpper(strings.TrimSpace(s))); t {
	case EVM, SOLANA:
		return t
	default:
		return UNKNOWN
	}
}
