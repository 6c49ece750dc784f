// Copyright 2025 The subscription-manager Authors

package account

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = uint64(86400)

// newClockedAccount returns an account whose clock is driven by the returned
// pointer instead of the wall clock.
func newClockedAccount() (*Account, *mockInvoker, *uint64) {
	a, inv := newTestAccount()
	now := uint64(1_700_000_000)
	a.clock = func() uint64 { return now }
	return a, inv, &now
}

func TestCheckDueRespectsDelay(t *testing.T) {
	a, _, now := newClockedAccount()

	_, err := a.CreateSubscription(testOwner, testBeneficiary, testToken, big.NewInt(100), day, 30*day)
	require.NoError(t, err)

	due, batch := a.CheckDue()
	assert.False(t, due, "nothing is due immediately after creation")
	assert.Empty(t, batch)

	*now += day - 1
	due, _ = a.CheckDue()
	assert.False(t, due, "one second early is not due")

	*now++
	due, batch = a.CheckDue()
	assert.True(t, due)
	assert.Equal(t, []uint64{1}, batch)
}

func TestCheckDueBatchCap(t *testing.T) {
	a, inv, now := newClockedAccount()
	inv.fund(testToken, 1_000_000)

	for i := 0; i < MaxBatchSize+1; i++ {
		_, err := a.CreateSubscription(testOwner, testBeneficiary, testToken, big.NewInt(1), 1, 30*day)
		require.NoError(t, err)
	}
	*now += 1

	due, batch := a.CheckDue()
	require.True(t, due)
	require.Len(t, batch, MaxBatchSize, "first poll returns exactly the cap")
	assert.Equal(t, uint64(1), batch[0])
	assert.Equal(t, uint64(MaxBatchSize), batch[MaxBatchSize-1])

	// Without executing, the same low ids win again: no rotation.
	_, again := a.CheckDue()
	assert.Equal(t, batch, again)

	// Once the first batch is settled, the capped-out id surfaces.
	_, err := a.ExecuteDue(batch)
	require.NoError(t, err)
	due, batch = a.CheckDue()
	require.True(t, due)
	assert.Equal(t, []uint64{MaxBatchSize + 1}, batch)
}

func TestExecuteDueAdvancesOnSuccess(t *testing.T) {
	a, inv, now := newClockedAccount()
	inv.fund(testToken, 150)

	id, err := a.CreateSubscription(testOwner, testBeneficiary, testToken, big.NewInt(100), day, 30*day)
	require.NoError(t, err)

	*now += 30 * day
	due, batch := a.CheckDue()
	require.True(t, due)
	require.Equal(t, []uint64{id}, batch)

	before, _ := a.GetSubscription(id)
	receipts, err := a.ExecuteDue(batch)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.True(t, receipts[0].Success)

	after, _ := a.GetSubscription(id)
	assert.Equal(t, before.NextExecuteAt+30*day, after.NextExecuteAt, "due time advances by exactly the interval")
	assert.Equal(t, int64(50), inv.tokenBalances[testToken].Int64(), "balance debited by the amount")

	events := a.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventSubscriptionExecuted, last.Kind)
	assert.Equal(t, id, last.ID)
	assert.True(t, last.Flag)

	// The transfer went to the token with packed transfer call data.
	lastCall := inv.calls[len(inv.calls)-1]
	assert.Equal(t, testToken, lastCall.target)
	assert.Equal(t, transferCallData(testBeneficiary, big.NewInt(100)), lastCall.payload)
}

func TestExecuteDueHoldsOnFailure(t *testing.T) {
	a, inv, now := newClockedAccount()
	// Token deliberately unfunded: the transfer fails.

	id, err := a.CreateSubscription(testOwner, testBeneficiary, testToken, big.NewInt(100), day, 30*day)
	require.NoError(t, err)
	*now += 30 * day

	before, _ := a.GetSubscription(id)
	receipts, err := a.ExecuteDue([]uint64{id})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.False(t, receipts[0].Success)

	after, _ := a.GetSubscription(id)
	assert.Equal(t, before.NextExecuteAt, after.NextExecuteAt, "failed item keeps its due time")

	last := a.Events()[len(a.Events())-1]
	assert.Equal(t, EventSubscriptionFailed, last.Kind)
	assert.False(t, last.Flag)

	// The item reappears on the next poll and succeeds once funded.
	due, batch := a.CheckDue()
	require.True(t, due)
	require.Equal(t, []uint64{id}, batch)

	inv.fund(testToken, 100)
	receipts, err = a.ExecuteDue(batch)
	require.NoError(t, err)
	assert.True(t, receipts[0].Success)
}

func TestExecuteDuePartialFailure(t *testing.T) {
	a, inv, now := newClockedAccount()
	scarceToken := testToken
	fundedToken := testBeneficiary // distinct address reused as a second token
	inv.fund(fundedToken, 1000)

	id1, err := a.CreateSubscription(testOwner, testBeneficiary, scarceToken, big.NewInt(100), 1, 30*day)
	require.NoError(t, err)
	id2, err := a.CreateSubscription(testOwner, testBeneficiary, fundedToken, big.NewInt(100), 1, 30*day)
	require.NoError(t, err)
	*now += 1

	receipts, err := a.ExecuteDue([]uint64{id1, id2})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.False(t, receipts[0].Success, "first item fails")
	assert.True(t, receipts[1].Success, "second item is unaffected by the first failure")
}

func TestExecuteDueRejectsFabricatedBatch(t *testing.T) {
	a, inv, now := newClockedAccount()
	inv.fund(testToken, 1000)

	future, err := a.CreateSubscription(testOwner, testBeneficiary, testToken, big.NewInt(100), 10*day, 30*day)
	require.NoError(t, err)
	cancelled, err := a.CreateSubscription(testOwner, testBeneficiary, testToken, big.NewInt(100), 1, 30*day)
	require.NoError(t, err)
	require.NoError(t, a.CancelSubscription(testOwner, cancelled))
	*now += 1

	callsBefore := len(inv.calls)
	eventsBefore := len(a.Events())

	receipts, err := a.ExecuteDue([]uint64{0, future, cancelled, 999})
	require.NoError(t, err)
	require.Len(t, receipts, 4)
	for _, r := range receipts {
		assert.False(t, r.Success)
	}
	assert.Equal(t, "unknown id", receipts[0].Reason)
	assert.Equal(t, "not due", receipts[1].Reason)
	assert.Equal(t, "inactive", receipts[2].Reason)
	assert.Equal(t, "unknown id", receipts[3].Reason)

	assert.Equal(t, callsBefore, len(inv.calls), "no invocation for fabricated ids")
	assert.Equal(t, eventsBefore, len(a.Events()), "no events for fabricated ids")
	sub, _ := a.GetSubscription(future)
	assert.Equal(t, uint64(1_700_000_000)+10*day, sub.NextExecuteAt, "state untouched")
}

func TestCancelledSubscriptionNeverDue(t *testing.T) {
	a, _, now := newClockedAccount()

	id, err := a.CreateSubscription(testOwner, testBeneficiary, testToken, big.NewInt(100), day, 30*day)
	require.NoError(t, err)
	require.NoError(t, a.CancelSubscription(testOwner, id))

	*now += 90 * day
	due, batch := a.CheckDue()
	assert.False(t, due)
	assert.Empty(t, batch)
}

func TestRecurringScenario(t *testing.T) {
	// create(B, T, 100, 1d, 30d) -> id 1; +30d: due; execute debits 100 and
	// advances by 30d; cancel stops everything.
	a, inv, now := newClockedAccount()
	inv.fund(testToken, 250)

	id, err := a.CreateSubscription(testOwner, testBeneficiary, testToken, big.NewInt(100), day, 30*day)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	*now += 30 * day
	due, batch := a.CheckDue()
	require.True(t, due)
	receipts, err := a.ExecuteDue(batch)
	require.NoError(t, err)
	require.True(t, receipts[0].Success)
	assert.Equal(t, int64(150), inv.tokenBalances[testToken].Int64())

	// Next cycle.
	*now += 30 * day
	due, batch = a.CheckDue()
	require.True(t, due)
	_, err = a.ExecuteDue(batch)
	require.NoError(t, err)
	assert.Equal(t, int64(50), inv.tokenBalances[testToken].Int64())

	require.NoError(t, a.CancelSubscription(testOwner, id))
	*now += 90 * day
	due, batch = a.CheckDue()
	assert.False(t, due)
	assert.Empty(t, batch)
}
