package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		IncSubmission("queued")
		IncNetworkTransition("online")
	})

	before := testutil.ToFloat64(syncAttempts.WithLabelValues("retry"))
	IncSyncAttempt("retry")
	assert.Equal(t, before+1, testutil.ToFloat64(syncAttempts.WithLabelValues("retry")))
}

func TestSetQueueEntries(t *testing.T) {
	statuses := []string{"pending", "synced"}
	SetQueueEntries(map[string]int{"pending": 3, "synced": 1}, statuses)
	assert.Equal(t, 3.0, testutil.ToFloat64(queueEntries.WithLabelValues("pending")))

	SetQueueEntries(map[string]int{"synced": 2}, statuses)
	assert.Equal(t, 0.0, testutil.ToFloat64(queueEntries.WithLabelValues("pending")))
	assert.Equal(t, 2.0, testutil.ToFloat64(queueEntries.WithLabelValues("synced")))
}
