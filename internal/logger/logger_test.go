package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelOf(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"fatal", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := levelOf(tt.in); got != tt.want {
				t.Errorf("levelOf(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNopLoggerAcceptsEverything(t *testing.T) {
	log := NewNop().Named("test").With(String("k", "v"))
	log.Debug("debug", Int("n", 1), Bool("ok", true))
	log.Info("info", Strings("ids", []string{"a", "b"}))
	log.Warn("warn", Error(errors.New("boom")))
	log.Infof("formatted %d", 1)
	_ = log.Sync()
}

func TestNewBuildsBothEncoders(t *testing.T) {
	for _, pretty := range []bool{true, false} {
		log := New("debug", pretty)
		log.Debug("hello", String("k", "v"))
	}
}
