package coursegen

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCategorize(t *testing.T) {
	cases := []struct {
		err  error
		want FailureCategory
	}{
		{&InputError{Field: "fileId", Reason: "required"}, FailureValidation},
		{fmt.Errorf("summarize: %w", &QualityGateError{FileID: uuid.New(), Score: 0.4, Threshold: 0.75, Attempts: 3}), FailureQualityGate},
		{NewProviderError("openai", "generate", errors.New("429")), FailureProvider},
		{NewStorageError("load documents", errors.New("conn reset")), FailureStorage},
		{errors.New("boom"), FailureInternal},
	}
	for _, tc := range cases {
		if got := Categorize(tc.err); got != tc.want {
			t.Fatalf("Categorize(%v): got %s want %s", tc.err, got, tc.want)
		}
	}
}

func TestFailureMessagePrefix(t *testing.T) {
	msg := FailureMessage(NewProviderError("openai", "generate", errors.New("timeout")))
	if !strings.HasPrefix(msg, "[provider] ") || !strings.Contains(msg, "timeout") {
		t.Fatalf("unexpected message %q", msg)
	}
	if FailureMessage(nil) != "" {
		t.Fatalf("nil error must render empty")
	}
}

func TestNewProviderErrorDoesNotDoubleWrap(t *testing.T) {
	inner := NewProviderError("embeddings", "embed", errors.New("503"))
	outer := NewProviderError("openai", "embed", fmt.Errorf("batch: %w", inner))
	if !strings.HasPrefix(outer.Error(), "batch: ") {
		t.Fatalf("expected the existing provider error to be kept, got %q", outer.Error())
	}
}
