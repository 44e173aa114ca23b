package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewProduction tests production logger creation
func TestNewProduction(t *testing.T) {
	logger, err := NewProduction()
	if err != nil {
		t.Fatalf("NewProduction() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewProduction() returned nil logger")
	}
	logger.Info("test message")
}

// TestNewWithConfig tests logger creation from configuration
func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"nil config", nil, true},
		{"defaults", &Config{}, false},
		{"console debug", &Config{Level: "debug", Format: "console", Development: true}, false},
		{"invalid level", &Config{Level: "loud"}, true},
		{"invalid encoding", &Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewWithConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("NewWithConfig() returned nil logger")
			}
		})
	}
}

// TestLogLevelFiltering writes to a file and checks the level filter
func TestLogLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := NewWithConfig(&Config{
		Level:       "warn",
		OutputPaths: []string{path},
		InitialFields: map[string]interface{}{
			"service": "pns-indexer",
		},
	})
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown", zap.Uint64("from_block", 10))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, `"from_block":10`) {
		t.Errorf("warn message missing from output: %s", out)
	}
	if !strings.Contains(out, `"service":"pns-indexer"`) {
		t.Errorf("initial field missing from output: %s", out)
	}
}

func TestNew(t *testing.T) {
	if _, err := New("info", "json"); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New("verbose", "json"); err == nil {
		t.Error("New() expected error for invalid level")
	}
}

// TestContextLogger tests storing and retrieving a logger from context
func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("from context")

	if logs.Len() != 1 {
		t.Fatalf("Expected 1 log entry, got %d", logs.Len())
	}
}

// TestContextLoggerFallback tests the no-op fallback
func TestContextLoggerFallback(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Error("FromContext() returned nil for empty context")
	}
	var unset context.Context
	if FromContext(unset) == nil {
		t.Error("FromContext() returned nil for nil context")
	}
}

func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithComponent(zap.New(core), "scheduler").Info("tick")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["component"]; got != "scheduler" {
		t.Errorf("Expected component 'scheduler', got %v", got)
	}
}
