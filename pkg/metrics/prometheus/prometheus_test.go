package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dapper/pkg/metrics"
)

func TestConstructorsReturnNilWhenDisabled(t *testing.T) {
	metrics.Reset()

	assert.Nil(t, NewLDAPMetrics())
	assert.Nil(t, NewRADIUSMetrics())
	assert.Nil(t, NewAuthMetrics())
	assert.Nil(t, NewAPIMetrics())
}

func TestMetricsRecorded(t *testing.T) {
	metrics.Reset()
	reg := metrics.InitRegistry()
	t.Cleanup(metrics.Reset)

	ldap := NewLDAPMetrics()
	require.NotNil(t, ldap)
	ldap.RecordConnectionAccepted()
	ldap.RecordOperation("bind", "success", 2*time.Millisecond)
	ldap.RecordOperation("bind", "invalidCredentials", time.Millisecond)

	auth := NewAuthMetrics()
	require.NotNil(t, auth)
	auth.RecordAuthentication("internal", metrics.OutcomeAccepted, time.Millisecond)

	impl := ldap.(*ldapMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.accepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.operations.WithLabelValues("bind", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(auth.(*authMetrics).attempts.WithLabelValues("internal", "accepted")))

	n, err := testutil.GatherAndCount(reg, "dapper_ldap_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
