package matching

import (
	"testing"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		hasAccepted bool
		hasPending  bool
		want        ReconcileAction
	}{
		{"matched request untouched", models.RequestStatusMatched, true, true, ReconcileSkip},
		{"completed request untouched", models.RequestStatusCompleted, false, false, ReconcileSkip},
		{"cancelled request untouched", models.RequestStatusCancelled, false, true, ReconcileSkip},
		{"accepted offers keep customer choosing", models.RequestStatusPendingProvider, true, false, ReconcilePendingCustomer},
		{"accepted trumps pending", models.RequestStatusPendingCustomer, true, true, ReconcilePendingCustomer},
		{"pending offers keep waiting", models.RequestStatusPendingProvider, false, true, ReconcilePendingProvider},
		{"drained pool redispatches", models.RequestStatusPendingProvider, false, false, ReconcileRedispatch},
		{"new request with nothing live redispatches", models.RequestStatusNew, false, false, ReconcileRedispatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reconcile(tt.status, tt.hasAccepted, tt.hasPending))
		})
	}
}

func TestLoneProviderDeclineDeletesRequest(t *testing.T) {
	// A request whose only eligible provider declines: no accepted and no
	// pending offers force a redispatch, and with everyone already
	// contacted the dispatch plans nothing, which deletes the request.
	action := Reconcile(models.RequestStatusPendingProvider, false, false)
	assert.Equal(t, ReconcileRedispatch, action)

	tiers := [][]models.Provider{{{ID: 1, FullName: "Ali"}}}
	wave, result := PlanWave(tiers, map[int64]bool{1: true})
	assert.Nil(t, wave)
	assert.True(t, DeleteAfterDispatch(result))
}

func TestDeleteAfterDispatch(t *testing.T) {
	assert.False(t, DeleteAfterDispatch(WavePlanned))
	assert.True(t, DeleteAfterDispatch(WaveAllContacted))
	assert.True(t, DeleteAfterDispatch(WaveNoCandidates))
}

func TestNewOfferToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token := NewOfferToken()
		assert.Len(t, token, TokenLength)
		assert.Regexp(t, "^[0-9A-F]+$", token)
		seen[token] = true
	}
	// 100 draws from a 16^10 space should not collide
	assert.Len(t, seen, 100)
}
