package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("family", "api", reg)

	m.Invitations.WithLabelValues("issued").Inc()
	m.Invitations.WithLabelValues("issued").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Invitations.WithLabelValues("issued")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "family_api_invitations_total")
}

func TestDiscard_CanBeCreatedTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard()
		Discard()
	})
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("boom")))
}
