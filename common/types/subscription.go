package types

import (
	"strings"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// SubscriptionMode defines the RPC connection type
type SubscriptionMode int

const (
	WebSocketMode SubscriptionMode = iota
	HTTPPollingMode
)

// GetSubscriptionMode returns mode based on RPC URL
func GetSubscriptionMode(rpcURL string) SubscriptionMode {
	if strings.HasPrefix(rpcURL, "wss://") || strings.HasPrefix(rpcURL, "ws://") {
		return WebSocketMode
	}
	return HTTPPollingMode
}

func (m SubscriptionMode) String() string {
	switch m {
	case WebSocketMode:
		return "WebSocket"
	case HTTPPollingMode:
		return "HTTP"
	default:
		return "Unknown"
	}
}

// LogSubscription wraps an EVM log subscription and its delivery channel.
type LogSubscription struct {
	Subscription event.Subscription
	EventChan    chan ethtypes.Log
	sync.Mutex
}

// Close unsubscribes. The delivery channel is left to the garbage collector
// since the client may still hold a reference to it.
func (s *LogSubscription) Close() {
	s.Lock()
	defer s.Unlock()

	if s.Subscription != nil {
		s.Subscription.Unsubscribe()
		s.Subscription = nil
	}
}
