// Copyright 2025 The subscription-manager Authors
// This file is part of the subscription-manager library.
//
// Account implements the EIP-4337 style smart account: access guards,
// operation validation and the generic execute entry.

package account

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrNotEntryPoint        = errors.New("caller is not the entry point")
	ErrNotEntryPointOrOwner = errors.New("caller is neither the entry point nor the owner")
	ErrValidationFailed     = errors.New("operation signature validation failed")
	ErrNonceOutOfRange      = errors.New("operation nonce exceeds 64 bits")
	ErrExecutionReverted    = errors.New("execution reverted")
	ErrReentrantCall        = errors.New("reentrant call into the account")
)

// Invoker is the opaque external-call mechanism the account uses to move
// value and invoke token transfers. A nil value means no native value is
// attached. Implementations may call back into the account; every invocation
// is wrapped in the account's reentrancy guard.
type Invoker interface {
	Call(target common.Address, value *big.Int, payload []byte) (success bool, returnData []byte)
}

// Account is the singleton account-like entity. The owner and entry point
// identities are set at creation and immutable thereafter.
//
// Each entry point method runs to completion atomically with respect to the
// registry state; the only suspension point is the outbound Invoker call,
// which is guarded against reentry.
type Account struct {
	owner      common.Address
	entryPoint common.Address
	invoker    Invoker

	// clock returns the current unix time; swapped out in tests.
	clock func() uint64

	// Append-only subscription arena. totalSubscriptions is the id source
	// and iteration bound; it never decreases.
	totalSubscriptions uint64
	subscriptions      map[uint64]*Subscription

	// Transient flag set while an outbound invocation is in flight.
	locked bool

	feed    event.Feed
	journal []SubscriptionEvent
}

// NewAccount creates an account owned by owner and driven by entryPoint.
func NewAccount(owner, entryPoint common.Address, invoker Invoker) *Account {
	return &Account{
		owner:         owner,
		entryPoint:    entryPoint,
		invoker:       invoker,
		clock:         func() uint64 { return uint64(time.Now().Unix()) },
		subscriptions: make(map[uint64]*Subscription),
	}
}

// Owner returns the account owner identity.
func (a *Account) Owner() common.Address {
	return a.owner
}

// EntryPointAddress returns the trusted entry point identity.
func (a *Account) EntryPointAddress() common.Address {
	return a.entryPoint
}

func (a *Account) requireEntryPoint(caller common.Address) error {
	if caller != a.entryPoint {
		return ErrNotEntryPoint
	}
	return nil
}

// requireEntryPointOrOwner admits the entry point or the owner. The two
// checks must stay OR'd: a guard requiring both would be uncallable, since
// no single caller equals two distinct identities at once.
func (a *Account) requireEntryPointOrOwner(caller common.Address) error {
	if caller != a.entryPoint && caller != a.owner {
		return ErrNotEntryPointOrOwner
	}
	return nil
}

// ValidateOperation checks that op was authorized by the account owner and is
// replay-safe, then settles any owed prefund to the caller.
//
// It returns ValidationOK (0) when the operation is authorized; every failure
// is returned as an error and no nonzero code is ever produced. Replay
// protection itself lives in the entry point's nonce ledger; the nonce check
// here is only a 64-bit format bound.
func (a *Account) ValidateOperation(caller common.Address, op *Operation, opDigest common.Hash, missingFunds *big.Int) (uint64, error) {
	if err := a.requireEntryPoint(caller); err != nil {
		return 0, err
	}
	if op == nil {
		return 0, ErrValidationFailed
	}
	if RecoverSigner(opDigest, op.Signature) != a.owner {
		return 0, ErrValidationFailed
	}
	if op.Nonce == nil || !op.Nonce.IsUint64() {
		return 0, ErrNonceOutOfRange
	}
	if missingFunds != nil && missingFunds.Sign() > 0 {
		// Settlement failure is ignored: verifying that sufficient value is
		// actually available is the entry point's responsibility.
		if ok, _ := a.guardedCall(caller, missingFunds, nil); !ok {
			log.Debug("Prefund settlement failed", "entryPoint", caller, "missing", missingFunds)
		}
	}
	return ValidationOK, nil
}

// Execute performs an arbitrary call on behalf of the account. On failure the
// invocation's return data is propagated inside the error.
func (a *Account) Execute(caller, target common.Address, value *big.Int, payload []byte) ([]byte, error) {
	if err := a.requireEntryPointOrOwner(caller); err != nil {
		return nil, err
	}
	if a.locked {
		return nil, ErrReentrantCall
	}
	ok, ret := a.guardedCall(target, value, payload)
	if !ok {
		return ret, fmt.Errorf("%w: returndata %x", ErrExecutionReverted, ret)
	}
	return ret, nil
}

// guardedCall wraps an outbound invocation in the transient reentrancy flag.
// Registry mutations observe the flag and reject nested entry. The prior
// state is restored rather than cleared, so a nested invocation (prefund
// settlement re-entered during upkeep, say) cannot unlock the outer one, and
// the deferred restore keeps the flag consistent if the invoker panics.
func (a *Account) guardedCall(target common.Address, value *big.Int, payload []byte) (bool, []byte) {
	prev := a.locked
	a.locked = true
	defer func() { a.locked = prev }()
	return a.invoker.Call(target, value, payload)
}
