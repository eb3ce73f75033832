package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"missing field", NewMissingField("id"), http.StatusBadRequest},
		{"invalid value", NewInvalidValue("hours", "x", "not a number"), http.StatusBadRequest},
		{"not found", NewNotFound("bin", "BIN-9"), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("query: %w", ErrNotFound), http.StatusNotFound},
		{"closed", Wrap(ErrClosed, "log"), http.StatusServiceUnavailable},
		{"other", New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should return nil")
	}

	v.AddMissing("listen")
	v.AddField("bin.height_cm", "must be positive")

	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !Is(err, ErrMissingField) {
		t.Error("errors.Is should see the first wrapped error")
	}
	if !IsValidation(err) {
		t.Error("expected validation category")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}
