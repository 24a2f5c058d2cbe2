package alerts_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"farmwatch/internal/alerts"
	"farmwatch/internal/alerts/alertstest"
)

func TestMemoryStoreContract(t *testing.T) {
	alertstest.Run(t, func(t *testing.T) alerts.Store {
		s, err := alerts.NewMemoryStore(1)
		require.NoError(t, err)
		return s
	})
}

func TestMemoryStoreRejectsBadNode(t *testing.T) {
	_, err := alerts.NewMemoryStore(1 << 20)
	require.Error(t, err)
}
