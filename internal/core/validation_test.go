package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestValidationFailed_JSON(t *testing.T) {
	err := Fail(
		DuplicateKey{Key: "a"},
		InvalidRow{Row: 3, Fields: []string{"_from"}},
		UnsupportedTable{},
	)

	raw, mErr := json.Marshal(err)
	if mErr != nil {
		t.Fatalf("Marshal: %v", mErr)
	}

	want := `{"errors":[{"key":"a","type":"DuplicateKey"},{"fields":["_from"],"row":3,"type":"InvalidRow"},{"type":"UnsupportedTable"}]}`
	if string(raw) != want {
		t.Errorf("json = %s\nwant   %s", raw, want)
	}
}

func TestValidationFailed_Error(t *testing.T) {
	err := Fail(MissingBody{}, NodeDuplicates{})
	if got, want := err.Error(), "validation failed: MissingBody, NodeDuplicates"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAsValidationFailed(t *testing.T) {
	wrapped := fmt.Errorf("csv upload: %w", Fail(DuplicateKey{Key: "x"}))

	vf, ok := AsValidationFailed(wrapped)
	if !ok {
		t.Fatal("AsValidationFailed() did not unwrap")
	}
	if !vf.Has(DuplicateKey{Key: "x"}) {
		t.Error("Has(DuplicateKey{x}) = false, want true")
	}
	if vf.Has(DuplicateKey{Key: "y"}) {
		t.Error("Has(DuplicateKey{y}) = true, want false")
	}

	if _, ok := AsValidationFailed(errors.New("plain")); ok {
		t.Error("AsValidationFailed(plain error) = true")
	}
}

func TestFailures(t *testing.T) {
	var f Failures
	if err := f.Err(); err != nil {
		t.Errorf("empty batch Err() = %v, want nil", err)
	}

	f.Add(DuplicateKey{Key: "a"})
	f.Add(DuplicateKey{Key: "a"})
	if f.Len() != 2 {
		t.Errorf("Len() = %d, want 2", f.Len())
	}

	vf, ok := AsValidationFailed(f.Err())
	if !ok || len(vf.Failures) != 2 {
		t.Fatalf("Err() = %v, want two failures", f.Err())
	}

	// The returned error must not alias the batch.
	f.Add(MissingBody{})
	if len(vf.Failures) != 2 {
		t.Errorf("returned error changed after Add: %v", vf.Failures)
	}
}

func TestDecodeFailed_Error(t *testing.T) {
	err := &DecodeFailed{Offset: 7, Reason: "NUL byte"}
	if got, want := err.Error(), "encoding error: NUL byte at byte 7"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
