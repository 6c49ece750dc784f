// Copyright 2025 The subscription-manager Authors
// This file is part of the subscription-manager library.
//
// EntryPoint implements the trusted dispatcher that drives accounts: it owns
// the replay nonce ledger and the gas deposit ledger, and turns signed
// operations into validated executions.

package account

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

var (
	// Well-known entry point address (deterministic CREATE2 style), used when
	// the embedding environment does not supply one.
	DefaultEntryPointAddress = common.HexToAddress("0x0000000000000000000000000000000000AA4337")

	ErrInvalidOperation = errors.New("invalid operation")
	ErrUnknownSender    = errors.New("operation sender is not a registered account")
	ErrNonceMismatch    = errors.New("operation nonce mismatch")
)

// EntryPoint processes operations against registered accounts.
type EntryPoint struct {
	address common.Address
	invoker Invoker

	// Registered accounts by address.
	accounts map[common.Address]*Account

	// Replay nonce ledger: sender -> next expected operation nonce.
	nonces map[common.Address]uint64

	// Deposit ledger: sender -> balance prepaid for execution cost.
	deposits map[common.Address]*big.Int
}

// NewEntryPoint creates an entry point at the well-known address.
func NewEntryPoint(invoker Invoker) *EntryPoint {
	return &EntryPoint{
		address:  DefaultEntryPointAddress,
		invoker:  invoker,
		accounts: make(map[common.Address]*Account),
		nonces:   make(map[common.Address]uint64),
		deposits: make(map[common.Address]*big.Int),
	}
}

// Address returns the entry point address.
func (ep *EntryPoint) Address() common.Address {
	return ep.address
}

// Register makes acct addressable as addr for incoming operations.
func (ep *EntryPoint) Register(addr common.Address, acct *Account) {
	ep.accounts[addr] = acct
}

// Nonce returns the next expected operation nonce for sender.
func (ep *EntryPoint) Nonce(sender common.Address) uint64 {
	return ep.nonces[sender]
}

// GetDeposit returns the deposit balance for an address.
func (ep *EntryPoint) GetDeposit(addr common.Address) *big.Int {
	if d, ok := ep.deposits[addr]; ok {
		return new(big.Int).Set(d)
	}
	return big.NewInt(0)
}

// AddDeposit adds to the deposit balance for an address.
func (ep *EntryPoint) AddDeposit(addr common.Address, amount *big.Int) {
	if _, ok := ep.deposits[addr]; !ok {
		ep.deposits[addr] = new(big.Int)
	}
	ep.deposits[addr].Add(ep.deposits[addr], amount)
}

// WithdrawDeposit withdraws from the deposit balance.
func (ep *EntryPoint) WithdrawDeposit(addr common.Address, amount *big.Int) error {
	deposit := ep.GetDeposit(addr)
	if deposit.Cmp(amount) < 0 {
		return fmt.Errorf("withdraw amount %s exceeds deposit %s", amount, deposit)
	}
	ep.deposits[addr].Sub(ep.deposits[addr], amount)
	return nil
}

// HandleOps processes a batch of operations. Failed operations still produce
// a receipt with Success=false; the batch never aborts.
func (ep *EntryPoint) HandleOps(ops []*Operation) []*OperationReceipt {
	receipts := make([]*OperationReceipt, 0, len(ops))

	for _, op := range ops {
		receipt, err := ep.handleSingleOp(op)
		if err != nil {
			log.Warn("Operation failed", "sender", opSender(op), "err", err)
			if receipt == nil {
				receipt = &OperationReceipt{
					OpHash:  opDigest(op),
					Sender:  opSender(op),
					Nonce:   opNonce(op),
					Success: false,
					Reason:  err.Error(),
				}
			}
		}
		receipts = append(receipts, receipt)
	}

	return receipts
}

// handleSingleOp processes one operation through the full lifecycle.
func (ep *EntryPoint) handleSingleOp(op *Operation) (*OperationReceipt, error) {
	if op == nil || op.Nonce == nil {
		return nil, ErrInvalidOperation
	}
	acct, ok := ep.accounts[op.Sender]
	if !ok {
		return nil, ErrUnknownSender
	}
	digest := op.Digest()

	// Replay protection lives here, not in the account: the operation nonce
	// must match the ledger exactly.
	if err := ep.checkNonce(op); err != nil {
		return nil, err
	}

	missing := ep.missingFunds(op)
	if _, err := acct.ValidateOperation(ep.address, op, digest, missing); err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}

	receipt := &OperationReceipt{
		OpHash:  digest,
		Sender:  op.Sender,
		Nonce:   new(big.Int).Set(op.Nonce),
		Success: true,
	}

	if len(op.CallData) > 0 {
		target, value, payload, err := UnpackCallData(op.CallData)
		if err != nil {
			return nil, err
		}
		ret, execErr := acct.Execute(ep.address, target, value, payload)
		receipt.ReturnData = ret
		if execErr != nil {
			// The operation was validated; an execution revert is an outcome,
			// not a processing failure.
			receipt.Success = false
			receipt.Reason = execErr.Error()
		}
	}

	ep.nonces[op.Sender]++
	return receipt, nil
}

// SimulateValidation checks whether an operation would be accepted, without
// executing it, settling prefund or touching the nonce ledger. Used by
// relayers to decide whether to submit.
func (ep *EntryPoint) SimulateValidation(op *Operation) error {
	if op == nil || op.Nonce == nil {
		return ErrInvalidOperation
	}
	acct, ok := ep.accounts[op.Sender]
	if !ok {
		return ErrUnknownSender
	}
	if err := ep.checkNonce(op); err != nil {
		return err
	}
	_, err := acct.ValidateOperation(ep.address, op, op.Digest(), nil)
	return err
}

// checkNonce validates the operation nonce against the replay ledger.
func (ep *EntryPoint) checkNonce(op *Operation) error {
	expected := ep.nonces[op.Sender]
	if !op.Nonce.IsUint64() || op.Nonce.Uint64() != expected {
		return fmt.Errorf("%w: expected %d, got %s", ErrNonceMismatch, expected, op.Nonce)
	}
	return nil
}

// missingFunds computes how much of the operation's required prefund is not
// covered by the sender's deposit.
func (ep *EntryPoint) missingFunds(op *Operation) *big.Int {
	required := requiredPrefund(op)
	deposit := ep.GetDeposit(op.Sender)
	if deposit.Cmp(required) >= 0 {
		return new(big.Int)
	}
	return required.Sub(required, deposit)
}

// requiredPrefund computes the max execution cost of an operation.
func requiredPrefund(op *Operation) *big.Int {
	fee := new(big.Int)
	if op.MaxFeePerGas != nil {
		fee = op.MaxFeePerGas.ToBig()
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(op.TotalGasLimit()), fee)
}

// PackCallData packs an operation call as target (20 bytes), value (32
// bytes), then the raw payload.
func PackCallData(target common.Address, value *big.Int, payload []byte) []byte {
	data := make([]byte, 0, 20+32+len(payload))
	data = append(data, target.Bytes()...)
	data = append(data, common.BigToHash(bigOrZero(value)).Bytes()...)
	data = append(data, payload...)
	return data
}

// UnpackCallData splits operation call data into target, value and payload.
func UnpackCallData(data []byte) (common.Address, *big.Int, []byte, error) {
	if len(data) < 52 {
		return common.Address{}, nil, nil, fmt.Errorf("%w: call data too short", ErrInvalidOperation)
	}
	target := common.BytesToAddress(data[:20])
	value := new(big.Int).SetBytes(data[20:52])
	return target, value, data[52:], nil
}

func opSender(op *Operation) common.Address {
	if op == nil {
		return common.Address{}
	}
	return op.Sender
}

func opNonce(op *Operation) *big.Int {
	if op == nil {
		return new(big.Int)
	}
	return bigOrZero(op.Nonce)
}

func opDigest(op *Operation) common.Hash {
	if op == nil {
		return common.Hash{}
	}
	return op.Digest()
}
