package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestReducerIsALazySingleton(t *testing.T) {
	require.Same(t, Reducer(), Reducer())
}

func TestSyncIsALazySingleton(t *testing.T) {
	require.Same(t, Sync(), Sync())
}

func TestConnectIsALazySingleton(t *testing.T) {
	require.Same(t, Connect(), Connect())
}

func TestReducerObserveIncrementsCounter(t *testing.T) {
	m := Reducer()
	before := testutil.ToFloat64(m.events.WithLabelValues("policy", "applied"))
	m.Observe("policy", "Applied")
	after := testutil.ToFloat64(m.events.WithLabelValues("policy", "applied"))
	require.Equal(t, before+1, after)
}

func TestReducerSetDeferredDepth(t *testing.T) {
	m := Reducer()
	m.SetDeferredDepth("proposal", 7)
	require.Equal(t, float64(7), testutil.ToFloat64(m.deferred.WithLabelValues("proposal")))
}

func TestReducerMethodsAreNilSafe(t *testing.T) {
	var m *reducerMetrics
	require.NotPanics(t, func() {
		m.Observe("policy", "applied")
		m.SetDeferredDepth("policy", 1)
	})
}

func TestSyncObserveRecordsOutcome(t *testing.T) {
	m := Sync()
	m.ObserveSync(10*time.Millisecond, nil)
	m.ObserveSync(5*time.Millisecond, errors.New("boom"))
	// Both outcomes should have recorded at least one observation.
	require.GreaterOrEqual(t, testutil.CollectAndCount(m.syncLatency), 2)
}

func TestSyncRecordErrorDefaultsReason(t *testing.T) {
	m := Sync()
	before := testutil.ToFloat64(m.syncErrors.WithLabelValues("chain_sync", "unspecified"))
	m.RecordError("chain_sync", "   ")
	after := testutil.ToFloat64(m.syncErrors.WithLabelValues("chain_sync", "unspecified"))
	require.Equal(t, before+1, after)
}

func TestSyncSetRelayConnectedTogglesGauge(t *testing.T) {
	m := Sync()
	m.SetRelayConnected("wss://relay.example", true)
	require.Equal(t, float64(1), testutil.ToFloat64(m.relayUp.WithLabelValues("wss://relay.example")))
	m.SetRelayConnected("wss://relay.example", false)
	require.Equal(t, float64(0), testutil.ToFloat64(m.relayUp.WithLabelValues("wss://relay.example")))
}

func TestSyncSetPendingDepth(t *testing.T) {
	m := Sync()
	m.SetPendingDepth(3)
	require.Equal(t, float64(3), testutil.ToFloat64(m.pendingDepth))
}

func TestSyncMethodsAreNilSafe(t *testing.T) {
	var m *syncMetrics
	require.NotPanics(t, func() {
		m.ObserveSync(time.Second, nil)
		m.RecordError("loop", "reason")
		m.SetRelayConnected("relay", true)
		m.SetPendingDepth(1)
	})
}

func TestConnectObserveRecordsOutcomeAndDefaultsMethod(t *testing.T) {
	m := Connect()
	before := testutil.ToFloat64(m.requests.WithLabelValues("unknown", "success"))
	m.Observe("  ", nil)
	after := testutil.ToFloat64(m.requests.WithLabelValues("unknown", "success"))
	require.Equal(t, before+1, after)
}

func TestConnectRecordRateLimited(t *testing.T) {
	m := Connect()
	before := testutil.ToFloat64(m.rateLimited)
	m.RecordRateLimited()
	require.Equal(t, before+1, testutil.ToFloat64(m.rateLimited))
}

func TestConnectMethodsAreNilSafe(t *testing.T) {
	var m *connectMetrics
	require.NotPanics(t, func() {
		m.Observe("method", nil)
		m.RecordRateLimited()
	})
}

func TestLabelKindDefaultsEmptyToUnknown(t *testing.T) {
	require.Equal(t, "unknown", labelKind("  "))
	require.Equal(t, "policy", labelKind(" policy "))
}
