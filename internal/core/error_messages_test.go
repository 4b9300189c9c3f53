package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/multinet/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"validation failure", Fail(MissingBody{}), "VAL001"},
		{"decode failure", &DecodeFailed{Reason: "UTF-16 byte order mark"}, "FILE003"},
		{"malformed body", fmt.Errorf("parse json: %w", ErrMalformedBody), "FILE002"},
		{"body too large", errors.New("http: request body too large"), "FILE001"},
		{"unique constraint", fmt.Errorf("insert: %w", store.ErrUniqueConstraint), "DB001"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB004"},
		{"timeout", errors.New("context deadline exceeded (timeout)"), "DB006"},
		{"workspace not found", fmt.Errorf("%w: ws", store.ErrWorkspaceNotFound), "WS001"},
		{"workspace exists", store.ErrWorkspaceExists, "WS002"},
		{"table kind mismatch", ErrCollectionKindMismatch, "TBL002"},
		{"too many uploads", ErrTooManyUploads, "UPL002"},
		{"cancelled", context.Canceled, "UPL004"},
		{"unknown format", fmt.Errorf("%w: xml", ErrUnknownFormat), "UPL006"},
		{"rate limit", errors.New("rate limit exceeded"), "RATE001"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
		{"case insensitive matching", errors.New("UNIQUE CONSTRAINT violated"), "DB001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrTooManyUploads)
	want := "System is busy processing other uploads (Code: UPL002). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true, want false")
	}
	if !IsUserFacing(store.ErrUniqueConstraint) {
		t.Error("IsUserFacing(unique constraint) = false, want true")
	}
	if IsUserFacing(errors.New("segfault in flux capacitor")) {
		t.Error("IsUserFacing(unknown) = true, want false")
	}
}
