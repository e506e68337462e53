package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		want    zapcore.Level
		wantErr string
	}{
		{name: "json info", level: "info", format: "json", want: zapcore.InfoLevel},
		{name: "console debug", level: "debug", format: "console", want: zapcore.DebugLevel},
		{name: "defaults", level: "", format: "", want: zapcore.InfoLevel},
		{name: "bad level", level: "loud", format: "json", wantErr: "invalid log level"},
		{name: "bad format", level: "info", format: "xml", wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.Level())
		})
	}
}

func TestLoggerFrom(t *testing.T) {
	fallback := zap.NewExample()

	t.Run("context logger wins", func(t *testing.T) {
		scoped := fallback.With(zap.String("request_id", "abc"))
		ctx := WithLogger(context.Background(), scoped)
		assert.Same(t, scoped, LoggerFrom(ctx, fallback))
	})

	t.Run("falls back", func(t *testing.T) {
		assert.Same(t, fallback, LoggerFrom(context.Background(), fallback))
	})

	t.Run("nop when nothing available", func(t *testing.T) {
		assert.NotNil(t, LoggerFrom(context.Background(), nil))
	})
}
