package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAddRelayMessages_IgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(RelayMessagesTotal.WithLabelValues("skipped"))

	AddRelayMessages("skipped", 0)
	AddRelayMessages("skipped", -3)
	AddRelayMessages("skipped", 2)

	assert.Equal(t, before+2, testutil.ToFloat64(RelayMessagesTotal.WithLabelValues("skipped")))
}

func TestObserveRelayCycle_CountsByStatus(t *testing.T) {
	before := testutil.ToFloat64(RelayCyclesTotal.WithLabelValues("success"))

	ObserveRelayCycle("success", 15*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(RelayCyclesTotal.WithLabelValues("success")))
}

func TestAddRowsInserted(t *testing.T) {
	before := testutil.ToFloat64(RelayRowsInsertedTotal)

	AddRowsInserted(0)
	AddRowsInserted(4)

	assert.Equal(t, before+4, testutil.ToFloat64(RelayRowsInsertedTotal))
}
