package metrics

import (
	"testing"
	"time"

	"valorant-rolesync/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.MemberOutcome(1, domain.OutcomeRoleUpdated)
	m.MemberOutcome(1, domain.OutcomeRoleUpdated)
	m.MemberOutcome(2, domain.OutcomeError)
	m.TickDropped(2)
	m.Backfilled(3)
	m.Backfilled(0)
	m.GatewayRetry("transient")
	m.CycleFinished(1, "completed", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.memberOutcomes.WithLabelValues("1", string(domain.OutcomeRoleUpdated))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.memberOutcomes.WithLabelValues("2", string(domain.OutcomeError))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedTicks.WithLabelValues("2")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.backfills))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayRetries.WithLabelValues("transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("1", "completed")))
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
