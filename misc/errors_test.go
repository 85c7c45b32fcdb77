package misc

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorWrapNil(t *testing.T) {
	if ErrorWrap(nil, "whatever") != nil {
		t.Error("wrapping nil must stay nil")
	}
	if ErrorWrapf(nil, "%s", "whatever") != nil {
		t.Error("wrapping nil must stay nil")
	}
}

func TestErrorWrapKeepsChain(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := ErrorWrap(base, "dial primary")

	if !errors.Is(wrapped, base) {
		t.Error("errors.Is must see through the wrapper")
	}
	if got := wrapped.Error(); got != "dial primary: connection refused" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorWrapVerboseFormat(t *testing.T) {
	wrapped := ErrorWrap(errors.New("boom"), "outer")
	out := fmt.Sprintf("%+v", wrapped)
	if !strings.Contains(out, "errors_test.go:") {
		t.Errorf("%%+v should include the call site, got %q", out)
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("%%+v should include the cause, got %q", out)
	}
}
