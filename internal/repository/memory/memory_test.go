package memory

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/sla"
	"github.com/helpdesk-sla/sla-service/internal/testhelpers"
)

func TestRuleStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRuleStore(testhelpers.NewRuleBuilder().WithID(5).Build())

	rule := testhelpers.NewRuleBuilder().WithName("inactive").Inactive().Build()
	require.NoError(t, store.Create(ctx, &rule))
	assert.Equal(t, int64(6), rule.ID)
	assert.Equal(t, 1, rule.Version)

	rule.ResolutionTime = 999
	require.NoError(t, store.Update(ctx, &rule))
	assert.Equal(t, 2, rule.Version)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(5), active[0].ID)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, 6))
	_, err = store.GetByID(ctx, 6)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.ErrorIs(t, store.Delete(ctx, 6), pgx.ErrNoRows)
}

func TestPauseStoreRejectsSecondOpenInterval(t *testing.T) {
	ctx := context.Background()
	store := NewPauseStore()

	first := &domain.PauseInterval{ID: "p1", TicketID: "ticket-1", Reason: domain.PauseReasonWaitingCustomer, StartedAt: testhelpers.At(1)}
	require.NoError(t, store.Create(ctx, first))
	second := &domain.PauseInterval{ID: "p2", TicketID: "ticket-1", Reason: domain.PauseReasonWaitingCustomer, StartedAt: testhelpers.At(2)}
	assert.ErrorIs(t, store.Create(ctx, second), sla.ErrAlreadyPaused)

	require.NoError(t, store.Close(ctx, "p1", testhelpers.At(3)))
	assert.ErrorIs(t, store.Close(ctx, "p1", testhelpers.At(4)), sla.ErrNotPaused)
	assert.ErrorIs(t, store.Close(ctx, "missing", testhelpers.At(4)), sla.ErrNotPaused)
}

func TestEscalationStoreDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := NewEscalationStore()
	firing := domain.EscalationFiring{ID: "f1", TicketID: "ticket-1", RuleID: 1, Level: 2, FiredAt: testhelpers.At(10)}

	require.NoError(t, store.RecordFirings(ctx, []domain.EscalationFiring{firing}))
	firing.ID = "f2"
	require.NoError(t, store.RecordFirings(ctx, []domain.EscalationFiring{firing, {ID: "f3", TicketID: "ticket-1", RuleID: 1, Level: 1}}))

	levels, err := store.FiredLevels(ctx, "ticket-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, levels)

	count, err := store.CountByRule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
