// Copyright 2025 The subscription-manager Authors
// This file is part of the subscription-manager library.
//
// Subscription lifecycle events surfaced to observers.

package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// EventKind identifies the subscription lifecycle event being emitted.
type EventKind uint8

const (
	EventSubscriptionCreated EventKind = iota
	EventSubscriptionCancelled
	EventSubscriptionExecuted
	EventSubscriptionFailed
)

func (k EventKind) String() string {
	switch k {
	case EventSubscriptionCreated:
		return "SubscriptionCreated"
	case EventSubscriptionCancelled:
		return "SubscriptionCancelled"
	case EventSubscriptionExecuted:
		return "SubscriptionExecuted"
	case EventSubscriptionFailed:
		return "SubscriptionFailed"
	default:
		return "UnknownEvent"
	}
}

// SubscriptionEvent is the record delivered to observers. Field population
// per kind mirrors the wire payloads:
//
//	SubscriptionCreated:   Token, ID, Amount, InitialDelay
//	SubscriptionCancelled: Flag=true, ID
//	SubscriptionExecuted:  ID, Flag=true
//	SubscriptionFailed:    ID, Flag=false
type SubscriptionEvent struct {
	Kind         EventKind
	ID           uint64
	Token        common.Address
	Amount       *big.Int
	InitialDelay uint64
	Flag         bool
}

// SubscribeEvents delivers subscription events to ch until the returned
// subscription is unsubscribed. Delivery is synchronous with the emitting
// call; subscribers should use buffered channels.
func (a *Account) SubscribeEvents(ch chan<- SubscriptionEvent) event.Subscription {
	return a.feed.Subscribe(ch)
}

// Events returns a copy of the append-only event journal, oldest first.
func (a *Account) Events() []SubscriptionEvent {
	out := make([]SubscriptionEvent, len(a.journal))
	copy(out, a.journal)
	return out
}

func (a *Account) emit(ev SubscriptionEvent) {
	a.journal = append(a.journal, ev)
	a.feed.Send(ev)
}
