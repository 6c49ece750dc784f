// Copyright 2025 The subscription-manager Authors
// This file is part of the subscription-manager library.

/*
Package account implements an EIP-4337 style smart account that manages
recurring payment subscriptions.

The account validates signed operations submitted through a trusted entry
point and keeps a registry of subscriptions that are scanned and settled in
batches once due.

# Architecture

The system consists of two main components:

 1. Account - The singleton account state: owner identity, access guards,
    operation validation, the subscription registry and the upkeep scheduler.
    All registry mutations are gated on the entry point or the owner.

 2. EntryPoint - The trusted dispatcher that drives accounts. It owns the
    replay nonce ledger and the gas deposit ledger, turns signed operations
    into validated executions, and produces per-operation receipts.

# Operation Flow

	Owner signs Operation digest
	    → EntryPoint.HandleOps processes:
	        1. Check the replay nonce against the ledger
	        2. Account.ValidateOperation (signature, nonce bound, prefund)
	        3. Account.Execute the operation call data
	        4. Increment the nonce, produce a receipt

# Upkeep Flow

	Anyone polls Account.CheckDue
	    → due subscription ids, ascending, capped at MaxBatchSize
	        → Account.ExecuteDue settles each id independently:
	            success advances the next due time by the interval,
	            failure leaves it unchanged so the item is retried
	            on the next poll. One failing item never aborts the batch.

All outcomes are surfaced as SubscriptionEvent records through a subscribable
feed and an append-only journal; cancelled subscriptions are tombstoned, never
deleted, so the registry doubles as an audit history.
*/
package account
