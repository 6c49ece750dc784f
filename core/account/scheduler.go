// Copyright 2025 The subscription-manager Authors
// This file is part of the subscription-manager library.
//
// Upkeep scheduler: due-item enumeration and batch settlement of
// subscriptions.

package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

// MaxBatchSize caps how many due subscription ids a single poll returns.
const MaxBatchSize = 10

// transferSelector is the 4-byte selector of ERC-20 transfer(address,uint256).
var transferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// CheckDue enumerates due subscriptions: a read-only ascending scan over ids
// 1..totalSubscriptions collecting active records whose due time has been
// reached, stopping at MaxBatchSize. Low ids are always collected first; ids
// past the cap wait for a subsequent poll.
//
// Callable by anyone.
func (a *Account) CheckDue() (bool, []uint64) {
	now := a.clock()
	var batch []uint64
	for id := uint64(1); id <= a.totalSubscriptions; id++ {
		sub := a.subscriptions[id]
		if sub == nil || !sub.Active || now < sub.NextExecuteAt {
			continue
		}
		batch = append(batch, id)
		if len(batch) == MaxBatchSize {
			break
		}
	}
	return len(batch) > 0, batch
}

// ExecuteDue settles each id in batch independently: a transfer of the
// subscription amount to its beneficiary is invoked, success advances the due
// time by the interval, failure leaves it unchanged so the item reappears on
// the next poll. One failing item never aborts the batch.
//
// ExecuteDue is callable by anyone, so every supplied id is re-validated
// here: ids that are out of range, inactive or not yet due are skipped
// without an event or state change, making a fabricated batch a no-op.
func (a *Account) ExecuteDue(batch []uint64) ([]UpkeepReceipt, error) {
	if a.locked {
		return nil, ErrReentrantCall
	}
	now := a.clock()
	receipts := make([]UpkeepReceipt, 0, len(batch))
	for _, id := range batch {
		sub := a.subscriptions[id]
		if reason := skipReason(sub, now); reason != "" {
			log.Debug("Skipping subscription", "id", id, "reason", reason)
			receipts = append(receipts, UpkeepReceipt{ID: id, Reason: reason})
			continue
		}

		ok, _ := a.guardedCall(sub.Token, nil, transferCallData(sub.Beneficiary, sub.Amount))
		if !ok {
			// Due time is left unchanged: the item stays due and is retried
			// naturally on the next poll.
			a.emit(SubscriptionEvent{Kind: EventSubscriptionFailed, ID: id, Flag: false})
			log.Warn("Subscription transfer failed", "id", id, "token", sub.Token, "amount", sub.Amount)
			receipts = append(receipts, UpkeepReceipt{ID: id, Reason: "transfer failed"})
			continue
		}

		sub.NextExecuteAt += sub.Interval
		a.emit(SubscriptionEvent{Kind: EventSubscriptionExecuted, ID: id, Flag: true})
		log.Info("Subscription executed", "id", id, "nextDue", sub.NextExecuteAt)
		receipts = append(receipts, UpkeepReceipt{ID: id, Success: true})
	}
	return receipts, nil
}

// skipReason explains why a batch id cannot be settled, or returns "" for a
// genuinely due subscription. Audit consumers use it to tell a fabricated
// batch from a merely premature one.
func skipReason(sub *Subscription, now uint64) string {
	switch {
	case sub == nil:
		return "unknown id"
	case !sub.Active:
		return "inactive"
	case now < sub.NextExecuteAt:
		return "not due"
	default:
		return ""
	}
}

// transferCallData packs an ERC-20 transfer of amount to the beneficiary.
func transferCallData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.BigToHash(amount).Bytes()...)
	return data
}
