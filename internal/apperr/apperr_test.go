package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrappedErrorKeepsTag(t *testing.T) {
	base := New(KindPrecondition, "INSUFFICIENT_BALANCE", "insufficient balance")
	wrapped := fmt.Errorf("debit wallet %s: %w", "u-1", base)

	if !errors.Is(wrapped, base) {
		t.Fatalf("expected wrapped error to match its variant")
	}
	if Code(wrapped) != "INSUFFICIENT_BALANCE" {
		t.Fatalf("unexpected code %s", Code(wrapped))
	}
	if Status(wrapped) != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", Status(wrapped))
	}
}

func TestUntaggedErrorIsInternal(t *testing.T) {
	err := errors.New("boom")
	if Code(err) != "INTERNAL" || Status(err) != http.StatusInternalServerError {
		t.Fatalf("expected internal mapping, got %s/%d", Code(err), Status(err))
	}
	if Retryable(err) {
		t.Fatalf("plain errors are not retryable")
	}
	if !Retryable(New(KindExternal, "GATEWAY_UNAVAILABLE", "gateway unavailable")) {
		t.Fatalf("external errors are retryable")
	}
}
