package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_TraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "trace",
		Pretty: false,
		Output: &buf,
	})

	logger.Trace().Msg("trace message")
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	output := buf.String()

	if !strings.Contains(output, "trace message") {
		t.Error("Expected trace message to be logged at trace level")
	}
	if !strings.Contains(output, "debug message") {
		t.Error("Expected debug message to be logged at trace level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("Expected info message to be logged at trace level")
	}
}

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "debug",
		Pretty: false,
		Output: &buf,
	})

	logger.Trace().Msg("trace message")
	logger.Debug().Msg("debug message")

	output := buf.String()

	if strings.Contains(output, "trace message") {
		t.Error("Expected trace message to NOT be logged at debug level")
	}
	if !strings.Contains(output, "debug message") {
		t.Error("Expected debug message to be logged at debug level")
	}
}

func TestNew_WarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "warn",
		Pretty: false,
		Output: &buf,
	})

	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")

	output := buf.String()

	if strings.Contains(output, "info message") {
		t.Error("Expected info message to NOT be logged at warn level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Expected warn message to be logged at warn level")
	}
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "bogus",
		Pretty: false,
		Output: &buf,
	})

	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("Expected info level for unknown level string, got %v", logger.GetLevel())
	}
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{
		Level:  "info",
		Pretty: false,
		Output: &buf,
	}, "patcher")

	logger.Info().Msg("hello")

	output := buf.String()
	if !strings.Contains(output, `"component":"patcher"`) {
		t.Errorf("Expected component field in output, got %q", output)
	}
}
