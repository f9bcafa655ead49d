package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ciphersock/internal/metrics"
)

func TestHandshake_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewHandshake(reg)
	require.NoError(t, err)

	m.ObserveHandshake("server", time.Now(), nil, "", "")
	m.ObserveHandshake("server", time.Now(), errors.New("x"), "wrapped_key", "malformed")
	m.Reject("address")
	m.PeerAdded()
	m.PeerAdded()
	m.PeerRemoved()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("server", "wrapped_key", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("address")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Peers))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Latency))
}

func TestHandshake_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewHandshake(reg)
	require.NoError(t, err)
	_, err = metrics.NewHandshake(reg)
	assert.Error(t, err)
}

func TestHandshake_NilIsNoop(t *testing.T) {
	var m *metrics.Handshake
	m.ObserveHandshake("client", time.Now(), nil, "", "")
	m.Reject("address")
	m.PeerAdded()
	m.PeerRemoved()
}
