package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrNotFound, true},
		{"wrapped once", fmt.Errorf("load meeting: %w", ErrNotFound), true},
		{"wrapped twice", fmt.Errorf("cmd: %w", fmt.Errorf("store: %w", ErrNotFound)), true},
		{"different error", ErrValidation, false},
		{"nil error", nil, false},
		{"unrelated error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrTransport, true},
		{"wrapped", fmt.Errorf("publish: %w", ErrTransport), true},
		{"different error", ErrOriginMismatch, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransport(tt.err); got != tt.want {
				t.Errorf("IsTransport() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMalformed(t *testing.T) {
	wrapped := fmt.Errorf("read current-meeting: %w", ErrMalformed)
	if !IsMalformed(wrapped) {
		t.Error("IsMalformed() should match wrapped ErrMalformed")
	}
	if IsMalformed(ErrStorageWrite) {
		t.Error("IsMalformed() should not match ErrStorageWrite")
	}
}

func TestIsInvalidState(t *testing.T) {
	if !IsInvalidState(fmt.Errorf("start: %w", ErrInvalidState)) {
		t.Error("IsInvalidState() should match wrapped ErrInvalidState")
	}
	if IsInvalidState(nil) {
		t.Error("IsInvalidState(nil) should be false")
	}
}
