package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		want   string
	}{
		{
			name:   "default config",
			config: nil,
			want:   "text",
		},
		{
			name: "json format",
			config: &Config{
				Level:  LevelInfo,
				Format: "json",
				Output: &bytes.Buffer{},
			},
			want: "json",
		},
		{
			name: "text format",
			config: &Config{
				Level:  LevelDebug,
				Format: "text",
				Output: &bytes.Buffer{},
			},
			want: "text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Fatal("NewLogger() returned nil")
			}
			if logger.format != tt.want {
				t.Errorf("NewLogger().format = %q, want %q", logger.format, tt.want)
			}
		})
	}
}

func TestLoggerWithTokenCarriesTheFieldAcrossForks(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{
		Level:   LevelDebug,
		Format:  "text",
		Output:  &buf,
		Sync:    true,
		NoColor: true,
	}

	logger := NewLogger(config)

	tokenLogger := logger.WithToken(42)
	tokenLogger.Info("status requested")

	output := buf.String()
	if !strings.Contains(output, "token=42") {
		t.Errorf("expected token=42 in output, got: %s", output)
	}

	// Forking again preserves the parent's fields alongside the new one.
	buf.Reset()
	axisLogger := tokenLogger.WithAxis(1)
	axisLogger.Info("segment queued")

	output = buf.String()
	if !strings.Contains(output, "token=42") {
		t.Errorf("expected token=42 in forked logger output, got: %s", output)
	}
	if !strings.Contains(output, "axis=1") {
		t.Errorf("expected axis=1 in output, got: %s", output)
	}
}

func TestLoggerWithRequest(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{
		Level:   LevelDebug,
		Format:  "text",
		Output:  &buf,
		Sync:    true,
		NoColor: true,
	}

	logger := NewLogger(config)
	requestLogger := logger.WithRequest(123, "send_segments")
	requestLogger.Debug("processing request")

	output := buf.String()
	if !strings.Contains(output, "token=123") {
		t.Errorf("expected token=123 in output, got: %s", output)
	}
	if !strings.Contains(output, "op=send_segments") {
		t.Errorf("expected op=send_segments in output, got: %s", output)
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{
		Level:   LevelDebug,
		Format:  "text",
		Output:  &buf,
		Sync:    true,
		NoColor: true,
	}

	logger := NewLogger(config)
	testErr := errors.New("device reported a protocol error")
	errorLogger := logger.WithError(testErr)
	errorLogger.Error("operation failed")

	output := buf.String()
	if !strings.Contains(output, "device reported a protocol error") {
		t.Errorf("expected the wrapped error text in output, got: %s", output)
	}
}

func TestLoggerJSONFormatEncodesFieldsAsAnObject(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{
		Level:  LevelInfo,
		Format: "json",
		Output: &buf,
	}

	logger := NewLogger(config).WithToken(7)
	logger.Info("status observed", "flag", "idle")

	output := buf.String()
	for _, want := range []string{`"token":7`, `"flag":"idle"`, `"msg":"status observed"`, `"level":"INFO"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in json output, got: %s", want, output)
		}
	}
}

func TestLoggerRespectsLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Format: "text", Output: &buf, NoColor: true})

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("expected Info below the configured level to be dropped, got: %s", buf.String())
	}

	logger.Warn("should be kept")
	if !strings.Contains(buf.String(), "should be kept") {
		t.Errorf("expected Warn at the configured level to be written, got: %s", buf.String())
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{
		Level:   LevelDebug,
		Format:  "text",
		Output:  &buf,
		Sync:    true,
		NoColor: true,
	}

	SetDefault(NewLogger(config))

	// Test debug message (should appear since we set LevelDebug)
	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("Expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}

	// Test info message
	buf.Reset()
	Info("info message")
	output = buf.String()
	if !strings.Contains(output, "info message") {
		t.Errorf("Expected info message, got: %s", output)
	}

	// Test warn message
	buf.Reset()
	Warn("warning message")
	output = buf.String()
	if !strings.Contains(output, "warning message") {
		t.Errorf("Expected warning message, got: %s", output)
	}

	// Test error message
	buf.Reset()
	Error("error message")
	output = buf.String()
	if !strings.Contains(output, "error message") {
		t.Errorf("Expected error message, got: %s", output)
	}
}
