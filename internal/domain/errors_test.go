package domain

import (
	"errors"
	"testing"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("feed error", func(t *testing.T) {
		err := NewFeedError("dial", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "dial: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "dial: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
		if !errors.Is(err, ErrFeedUnavailable) {
			t.Error("Expected error to match ErrFeedUnavailable")
		}
	})

	t.Run("price error", func(t *testing.T) {
		err := NewPriceError("fetch_price", baseErr)
		if !errors.Is(err, ErrPriceUnavailable) {
			t.Error("Expected error to match ErrPriceUnavailable")
		}
		if errors.Is(err, ErrFeedUnavailable) {
			t.Error("Price error must not match ErrFeedUnavailable")
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		err := NewFatalNetworkError("auth", baseErr)

		if err.IsRetriable() {
			t.Error("Expected error to not be retriable")
		}
		if !errors.Is(err, baseErr) {
			t.Error("Expected fatal error to wrap baseErr")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := NewFeedError("dial", baseErr)
		fatal := NewFatalNetworkError("auth", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should return true for retriable error")
		}

		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for fatal error")
		}

		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "trade_endpoint", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [trade_endpoint]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}
