package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andrej220/secuaudit/internal/lg"
)

func TestLogDiagnostics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := LogDiagnostics(lg.NewZap(zap.New(core)))

	d.Emit(Event{Kind: EventCheckStarted, CheckID: "1.1", Message: "running"})
	d.Emit(Event{Kind: EventFailed, CheckID: "1.1", Message: "mismatch"})
	d.Emit(Event{Kind: EventTransportError, CheckID: "1.2", Message: "connect to db01:22: refused"})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "1.2", entries[2].ContextMap()["check_id"])
	assert.Equal(t, string(EventTransportError), entries[2].ContextMap()["event"])
}

func TestRecorderReturnsCopy(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(Event{Kind: EventPassed})

	events := rec.Events()
	events[0].Kind = EventFailed

	assert.Equal(t, []EventKind{EventPassed}, rec.Kinds())
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard.Emit(Event{Kind: EventPassed}) })
}
