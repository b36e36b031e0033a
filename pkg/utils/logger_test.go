package utils

import (
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true)
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(true) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("production mode returns production logger", func(t *testing.T) {
		logger, err := NewLogger(false)
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(false) returned nil logger")
		}
		_ = logger.Sync()
	})
}

func TestComponentLogger(t *testing.T) {
	t.Run("nil base falls back to nop", func(t *testing.T) {
		logger := ComponentLogger(nil, "fetcher")
		if logger == nil {
			t.Fatal("ComponentLogger(nil) returned nil")
		}
		logger.Info("should not panic")
	})

	t.Run("names the child logger", func(t *testing.T) {
		base, err := NewLogger(true)
		if err != nil {
			t.Fatal(err)
		}
		logger := ComponentLogger(base, "compositor")
		if logger == nil {
			t.Fatal("ComponentLogger returned nil")
		}
		logger.Debug("component logger works")
	})
}
