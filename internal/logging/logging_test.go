package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    zerolog.Level
		wantErr bool
	}{
		{name: "default", config: Config{}, want: zerolog.InfoLevel},
		{name: "debug wins over level", config: Config{Level: "error", Debug: true}, want: zerolog.DebugLevel},
		{name: "named level", config: Config{Level: "warn"}, want: zerolog.WarnLevel},
		{name: "bad level", config: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, GetLogger().GetLevel())
			assert.Equal(t, tt.want, log.Logger.GetLevel())
		})
	}
}

func TestWithComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWriter(Config{Format: "json"}, &buf))

	l := WithComponent("manager")
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "manager", entry["component"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init(Config{}))
	SetLevel(zerolog.ErrorLevel)
	assert.Equal(t, zerolog.ErrorLevel, GetLogger().GetLevel())
}

func TestDiscard(t *testing.T) {
	Discard()
	assert.Equal(t, zerolog.Disabled, GetLogger().GetLevel())
}
