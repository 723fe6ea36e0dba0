// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package pkg

import (
	"errors"
	"testing"
)

func TestPkgErrorIsBySentinel(t *testing.T) {
	err := wrapErr(ErrKindDecryptFailed, errors.New("tag mismatch"), "block %d", 3)
	if !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("errors.Is(err, ErrDecryptFailed) = false, want true")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is(err, ErrNotFound) = true, want false")
	}
}

func TestPkgErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := wrapErr(ErrKindHeaderInvalid, cause, "bad header")
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
}

func TestPkgErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("EOF")
	err := wrapErr(ErrKindTableOutOfBounds, cause, "read entry table")
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
}
