package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("whatever"))
}

func TestWithNotifier_FiltersByLevel(t *testing.T) {
	base := New(Config{Level: "debug", File: filepath.Join(t.TempDir(), "test.log")})

	var got []string
	log := WithNotifier(base, zapcore.ErrorLevel, func(e zapcore.Entry) error {
		got = append(got, e.Message)
		return nil
	})

	log.Info("quiet")
	log.Error("loud")
	base.Error("not mirrored")

	assert.Equal(t, []string{"loud"}, got)
}
