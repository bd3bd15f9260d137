package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNamed_ScopesGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mu.Lock()
	prev := log
	log = zap.New(core)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		log = prev
		mu.Unlock()
	})

	l := Named("statusws")
	assert.Equal(t, "statusws", l.Name())

	l.Info("client_connected")
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "statusws", entries[0].LoggerName)
	}
}
