package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_ValidConfig(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLogger_DefaultsOnNil(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", *NewDefaultConfig(), false},
		{"console format", Config{Level: "info", Format: "console"}, false},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
		{"bad stacktrace level", Config{Level: "info", Format: "json", Stacktrace: "sometimes"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogger_ContextFieldsAttached(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithSessionID(context.Background(), "req-abc")
	tl.Info(ctx, "bidding started", zap.Int("bids", 2))

	entries := tl.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-abc", fields["session.id"])
	assert.Equal(t, int64(2), fields["bids"])
}

func TestLogger_AssertLogged(t *testing.T) {
	tl := NewTestLogger()
	tl.Warn(context.Background(), "poll timeout")
	tl.AssertLogged(t, zapcore.WarnLevel, "poll timeout")
}

func TestFromContext_NopWhenAbsent(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	// Must not panic.
	logger.Info(context.Background(), "discarded")
}

func TestFromContext_RoundTrip(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}
