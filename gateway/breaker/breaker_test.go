package breaker

import (
	"testing"

	"github.com/BaSui01/agentflow-gateway/gateway/stats"
	"github.com/stretchr/testify/assert"
)

func TestHealthy_FalseAfterFiveConsecutiveErrors(t *testing.T) {
	var tr stats.Tracker
	for i := 0; i < DefaultThreshold; i++ {
		tr.RecordError()
	}
	assert.False(t, Healthy(tr.Snapshot(), DefaultThreshold))
}

func TestHealthy_TrueAgainAfterNextSuccess(t *testing.T) {
	var tr stats.Tracker
	for i := 0; i < DefaultThreshold; i++ {
		tr.RecordError()
	}
	assert.False(t, Healthy(tr.Snapshot(), DefaultThreshold))

	tr.RecordSuccess(100)
	assert.True(t, Healthy(tr.Snapshot(), DefaultThreshold))
}

func TestHealthy_BelowThreshold(t *testing.T) {
	var tr stats.Tracker
	for i := 0; i < DefaultThreshold-1; i++ {
		tr.RecordError()
	}
	assert.True(t, Healthy(tr.Snapshot(), DefaultThreshold))
}
