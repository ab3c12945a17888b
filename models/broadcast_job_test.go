package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeBroadcastStatus(t *testing.T) {
	cases := []struct {
		name string
		in   OutcomeCounts
		want BroadcastJobStatus
	}{
		{"empty job counts as sent", OutcomeCounts{0, 0, 0}, BroadcastStatusSent},
		{"all sent", OutcomeCounts{5, 0, 5}, BroadcastStatusSent},
		{"all failed", OutcomeCounts{0, 4, 4}, BroadcastStatusFailed},
		{"partial success counts as sent", OutcomeCounts{3, 0, 5}, BroadcastStatusSent},
		{"mixed sent and failed", OutcomeCounts{1, 3, 4}, BroadcastStatusSent},
		{"only failures with pending left", OutcomeCounts{0, 2, 5}, BroadcastStatusScheduled},
		{"nothing resolved yet", OutcomeCounts{0, 0, 3}, BroadcastStatusScheduled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeBroadcastStatus(tc.in))
		})
	}
}

func TestComputeBroadcastStatusIdempotent(t *testing.T) {
	c := OutcomeCounts{SentCount: 2, FailCount: 1, TotalCount: 5}
	first := ComputeBroadcastStatus(c)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeBroadcastStatus(c))
	}
}

func TestRecipientEligible(t *testing.T) {
	now := time.Now().UTC()

	r := Recipient{Outcome: OutcomePending}
	assert.True(t, r.Eligible(now), "pending with no postponement is eligible")

	past := now.Add(-time.Minute)
	r.NextAttemptAt = &past
	assert.True(t, r.Eligible(now))

	future := now.Add(time.Minute)
	r.NextAttemptAt = &future
	assert.False(t, r.Eligible(now))

	r = Recipient{Outcome: OutcomeSent}
	assert.False(t, r.Eligible(now), "terminal outcome is never eligible")
	r = Recipient{Outcome: OutcomeFailed}
	assert.False(t, r.Eligible(now))
}

func TestOutcomeTerminal(t *testing.T) {
	assert.False(t, OutcomePending.Terminal())
	assert.True(t, OutcomeSent.Terminal())
	assert.True(t, OutcomeFailed.Terminal())
}
