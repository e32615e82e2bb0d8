package telemetry

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	require.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestNewLogger_LevelAndService(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogConfig{Level: "warn", Output: &buf, Service: "mktconc"})
	l.Info().Msg("hidden")
	l.Warn().Str("group", "SP").Msg("shown")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"service":"mktconc"`)
	require.Contains(t, out, `"group":"SP"`)
	require.Contains(t, out, `"message":"shown"`)
}

func TestNewLogger_Pretty(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LogConfig{Level: "info", Pretty: true, Output: &buf})
	l.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.NotContains(t, buf.String(), `"message"`)
}

func TestServerHooks_Registered(t *testing.T) {
	h := ServerHooks(zerolog.Nop())
	require.Len(t, h.OnRegisterSession, 1)
	require.Len(t, h.OnUnregisterSession, 1)
	require.Len(t, h.OnAfterListTools, 1)
	require.Len(t, h.OnBeforeCallTool, 1)
	require.Len(t, h.OnAfterCallTool, 1)
	require.Len(t, h.OnError, 1)
}
