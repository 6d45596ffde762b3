package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		env, level string
		debug      bool
		info       bool
	}{
		{env: "development", debug: true, info: true},
		{env: "production", debug: false, info: true},
		{env: "production", level: "debug", debug: true, info: true},
		{env: "development", level: "warn", debug: false, info: false},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.debug, logger.Core().Enabled(zap.DebugLevel))
			assert.Equal(t, tt.info, logger.Core().Enabled(zap.InfoLevel))
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("production", "loud")
	assert.ErrorContains(t, err, `parse log level "loud"`)
}
