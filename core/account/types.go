// Copyright 2025 The subscription-manager Authors
// This file is part of the subscription-manager library.
//
// Package account implements an EIP-4337 style smart account with a
// recurring-payment subscription registry and upkeep scheduler.

package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ValidationOK is the sentinel returned by ValidateOperation when an
// operation is authorized. The function never returns a nonzero code: every
// failure travels on the error channel instead.
const ValidationOK uint64 = 0

// Operation represents an EIP-4337 compatible signed request to act on the
// account's behalf.
type Operation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         uint64         `json:"callGasLimit"`
	VerificationGasLimit uint64         `json:"verificationGasLimit"`
	PreVerificationGas   uint64         `json:"preVerificationGas"`
	MaxFeePerGas         *uint256.Int   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *uint256.Int   `json:"maxPriorityFeePerGas"`
	Signature            []byte         `json:"signature"`
}

// TotalGasLimit returns total gas required for the operation.
func (op *Operation) TotalGasLimit() uint64 {
	return op.CallGasLimit + op.VerificationGasLimit + op.PreVerificationGas
}

// Digest computes the hash the account owner signs: keccak over the packed
// operation fields, excluding the signature itself.
func (op *Operation) Digest() common.Hash {
	packed := make([]byte, 0, 256)
	packed = append(packed, op.Sender.Bytes()...)
	packed = append(packed, common.BigToHash(bigOrZero(op.Nonce)).Bytes()...)
	packed = append(packed, crypto.Keccak256(op.CallData)...)
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(op.CallGasLimit)).Bytes()...)
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(op.VerificationGasLimit)).Bytes()...)
	packed = append(packed, common.BigToHash(new(big.Int).SetUint64(op.PreVerificationGas)).Bytes()...)
	maxFee := uint256OrZero(op.MaxFeePerGas).Bytes32()
	packed = append(packed, maxFee[:]...)
	maxTip := uint256OrZero(op.MaxPriorityFeePerGas).Bytes32()
	packed = append(packed, maxTip[:]...)

	return common.BytesToHash(crypto.Keccak256(packed))
}

// Subscription is one recurring payment obligation. Records are never
// deleted: cancellation clears Active and the record stays queryable.
type Subscription struct {
	ID            uint64         `json:"id"`
	Beneficiary   common.Address `json:"beneficiary"`
	Token         common.Address `json:"token"`
	Amount        *big.Int       `json:"amount"`
	NextExecuteAt uint64         `json:"nextExecuteAt"` // unix seconds
	Interval      uint64         `json:"interval"`      // seconds
	Active        bool           `json:"active"`
}

// OperationReceipt contains the outcome of a processed Operation.
type OperationReceipt struct {
	OpHash     common.Hash    `json:"opHash"`
	Sender     common.Address `json:"sender"`
	Nonce      *big.Int       `json:"nonce"`
	Success    bool           `json:"success"`
	Reason     string         `json:"reason,omitempty"` // failure reason if not successful
	ReturnData []byte         `json:"returnData"`
}

// UpkeepReceipt contains the outcome of one subscription settlement attempt
// within an ExecuteDue batch.
type UpkeepReceipt struct {
	ID      uint64 `json:"id"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func uint256OrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
