// Copyright 2025 The subscription-manager Authors
// This file is part of the subscription-manager library.
//
// Subscription registry: create/cancel lifecycle, gated on the entry point
// or the owner.

package account

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrBeneficiaryIsZero   = errors.New("beneficiary is the zero address")
	ErrTokenIsZero         = errors.New("token is the zero address")
	ErrAmountIsZero        = errors.New("amount is zero")
	ErrDelayIsZero         = errors.New("initial delay is zero")
	ErrIntervalTooShort    = errors.New("interval is shorter than the initial delay")
	ErrInvalidSubscription = errors.New("invalid subscription")
)

// CreateSubscription registers a recurring payment obligation and returns its
// id. Ids are assigned sequentially starting at 1. The first execution
// becomes due initialDelay seconds from now; each successful execution then
// pushes the due time forward by interval.
//
// Inputs are validated in order, failing fast on the first violation, so a
// rejected call leaves the registry untouched.
func (a *Account) CreateSubscription(caller, beneficiary, token common.Address, amount *big.Int, initialDelay, interval uint64) (uint64, error) {
	if err := a.requireEntryPointOrOwner(caller); err != nil {
		return 0, err
	}
	if a.locked {
		return 0, ErrReentrantCall
	}
	if beneficiary == (common.Address{}) {
		return 0, ErrBeneficiaryIsZero
	}
	if token == (common.Address{}) {
		return 0, ErrTokenIsZero
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrAmountIsZero
	}
	if initialDelay == 0 {
		return 0, ErrDelayIsZero
	}
	if interval < initialDelay {
		return 0, ErrIntervalTooShort
	}

	id := a.totalSubscriptions + 1
	a.totalSubscriptions = id
	sub := &Subscription{
		ID:            id,
		Beneficiary:   beneficiary,
		Token:         token,
		Amount:        new(big.Int).Set(amount),
		NextExecuteAt: a.clock() + initialDelay,
		Interval:      interval,
		Active:        true,
	}
	a.subscriptions[id] = sub

	a.emit(SubscriptionEvent{
		Kind:         EventSubscriptionCreated,
		ID:           id,
		Token:        token,
		Amount:       new(big.Int).Set(amount),
		InitialDelay: initialDelay,
	})
	log.Info("Subscription created", "id", id, "token", token, "amount", amount, "firstDue", sub.NextExecuteAt)
	return id, nil
}

// CancelSubscription permanently excludes a subscription from scheduling.
// Cancellation is terminal: there is no reactivation path, and cancelling an
// already-inactive id fails. The record itself is kept for audit.
func (a *Account) CancelSubscription(caller common.Address, id uint64) error {
	if err := a.requireEntryPointOrOwner(caller); err != nil {
		return err
	}
	if a.locked {
		return ErrReentrantCall
	}
	sub := a.subscriptions[id]
	if id == 0 || id > a.totalSubscriptions || sub == nil || !sub.Active {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, id)
	}
	sub.Active = false

	a.emit(SubscriptionEvent{Kind: EventSubscriptionCancelled, ID: id, Flag: true})
	log.Info("Subscription cancelled", "id", id)
	return nil
}

// GetSubscription returns a copy of the record for id, including tombstoned
// (cancelled) records.
func (a *Account) GetSubscription(id uint64) (Subscription, bool) {
	sub, ok := a.subscriptions[id]
	if !ok {
		return Subscription{}, false
	}
	cpy := *sub
	cpy.Amount = new(big.Int).Set(sub.Amount)
	return cpy, true
}

// TotalSubscriptions returns the monotonically increasing subscription
// counter, which is also the highest assigned id.
func (a *Account) TotalSubscriptions() uint64 {
	return a.totalSubscriptions
}
