package warp

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCategories(t *testing.T) {
	cases := []struct {
		err  error
		typ  ErrorType
		name string
	}{
		{NewMemoryError("Malloc", "boom", nil), ErrTypeMemory, "Memory"},
		{NewInvalidArgError("Launch", "bad grid"), ErrTypeInvalidArg, "InvalidArgument"},
		{NewPreconditionError("Convolve", "width not divisible"), ErrTypePrecondition, "Precondition"},
		{NewExecutionError("Launch", "dispatch failed", nil), ErrTypeExecution, "Execution"},
		{NewNumericalError("Solve", "diverged"), ErrTypeNumerical, "Numerical"},
		{NewNotConfiguredError("Convolve", "no kernel"), ErrTypeNotConfigured, "NotConfigured"},
	}

	for _, c := range cases {
		if !IsErrorType(c.err, c.typ) {
			t.Errorf("%v not recognized as %s", c.err, c.name)
		}
		if !strings.Contains(c.err.Error(), c.name) {
			t.Errorf("%q does not mention category %s", c.err.Error(), c.name)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewExecutionError("Launch", "dispatch failed", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not found by errors.Is")
	}
	if !strings.Contains(err.Error(), "underlying") {
		t.Errorf("%q does not mention the cause", err.Error())
	}

	wrapped := fmt.Errorf("context: %w", err)
	if !IsErrorType(wrapped, ErrTypeExecution) {
		t.Error("IsErrorType should see through fmt.Errorf wrapping")
	}
}

func TestErrorPredicates(t *testing.T) {
	if !IsMemoryError(ErrDoubleFree) {
		t.Error("ErrDoubleFree should be a memory error")
	}
	if !IsInvalidArgError(ErrInvalidSize) {
		t.Error("ErrInvalidSize should be an invalid argument error")
	}
	if IsPreconditionError(ErrInvalidSize) {
		t.Error("ErrInvalidSize should not be a precondition error")
	}
	if IsNotConfiguredError(nil) {
		t.Error("nil should not match any category")
	}
}

func TestErrorTypeString(t *testing.T) {
	if got := ErrorType(999).String(); got != "Unknown" {
		t.Errorf("unknown type prints %q", got)
	}
}
