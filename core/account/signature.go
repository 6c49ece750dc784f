// Copyright 2025 The subscription-manager Authors
// This file is part of the subscription-manager library.

package account

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverSigner recovers the identity that produced sig over digest. The zero
// address is the invalid sentinel: it is returned for malformed or
// unrecoverable signatures and can never match a real owner.
func RecoverSigner(digest common.Hash, sig []byte) common.Address {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}
	}
	pubKey, err := crypto.Ecrecover(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}
	}
	return common.BytesToAddress(crypto.Keccak256(pubKey[1:])[12:])
}
