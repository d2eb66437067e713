package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailureKind tags the gateway's error taxonomy. Callers branch on the
// kind, never on provider-specific error text.
type FailureKind string

const (
	KindTimeout         FailureKind = "timeout"
	KindUpstream        FailureKind = "upstream"
	KindBadRequest      FailureKind = "bad_request"
	KindSchemaViolation FailureKind = "schema_violation"
)

// Failure is the single error type the gateway surfaces.
type Failure struct {
	Kind     FailureKind
	Provider string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("llm %s failure (%s): %v", f.Kind, f.Provider, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}

// classify maps a raw provider error onto the taxonomy. Timeouts are
// detected from context state, 4xx from status text; everything else is
// an upstream failure.
func classify(err error, provider string) *Failure {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Failure{Kind: KindTimeout, Provider: provider, Err: err}
	}
	msg := strings.ToLower(err.Error())
	for _, code := range []string{"400", "401", "403", "404", "422", "429"} {
		if strings.Contains(msg, "status code: "+code) || strings.Contains(msg, "status: "+code) {
			return &Failure{Kind: KindBadRequest, Provider: provider, Err: err}
		}
	}
	return &Failure{Kind: KindUpstream, Provider: provider, Err: err}
}
