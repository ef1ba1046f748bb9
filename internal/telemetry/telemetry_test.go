package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dapper", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestNoopSpans(t *testing.T) {
	ctx, span := StartProtocolSpan(context.Background(), SpanLDAPBind, "ldap", "127.0.0.1",
		LDAPBindDN("uid=foo"), LDAPMessageID(1))
	defer span.End()

	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	SetAttributes(ctx, LDAPResultCode(49))

	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestParseProfileType(t *testing.T) {
	for name := range profileTypes {
		_, err := parseProfileType(name)
		assert.NoError(t, err, name)
	}
	_, err := parseProfileType("heap")
	assert.Error(t, err)
}

func TestInitProfilingDisabled(t *testing.T) {
	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, stop())
}
