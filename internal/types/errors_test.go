package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "Direct",
			err:  E(KindNotFound, "store.GetDocument", "no such document"),
			want: KindNotFound,
		},
		{
			name: "Wrapped",
			err:  fmt.Errorf("ingest failed: %w", E(KindResourceExhausted, "embedding.Embed", "quota")),
			want: KindResourceExhausted,
		},
		{
			name: "Unclassified",
			err:  errors.New("connection reset"),
			want: KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(E(KindUnavailable, "adapter.Search", "timeout")) {
		t.Error("UNAVAILABLE must be retryable")
	}
	if !Retryable(errors.New("plain transport error")) {
		t.Error("unclassified errors default to retryable")
	}
	if Retryable(E(KindPreconditionFailed, "orchestrator.Validate", "no sources")) {
		t.Error("PRECONDITION_FAILED must not be retryable")
	}
	if Retryable(E(KindInvalidArgument, "tools.Dispatch", "bad enum")) {
		t.Error("INVALID_ARGUMENT must not be retryable")
	}
}

func TestTieredConfidence(t *testing.T) {
	tests := []struct {
		frequency int
		want      float64
	}{
		{3, 0.3}, {4, 0.3}, {5, 0.5}, {9, 0.5}, {10, 0.7}, {19, 0.7}, {20, 0.9}, {50, 0.9},
	}
	for _, tt := range tests {
		if got := TieredConfidence(tt.frequency); got != tt.want {
			t.Errorf("TieredConfidence(%d) = %v, want %v", tt.frequency, got, tt.want)
		}
	}
}

func TestSectionPriority(t *testing.T) {
	prev := 0
	for _, st := range AllSectionTypes() {
		p := SectionPriority(st)
		if p != prev+1 {
			t.Errorf("SectionPriority(%s) = %d, want %d", st, p, prev+1)
		}
		prev = p
	}
	if SectionPriority("BOGUS") != 7 {
		t.Error("unknown section types must sort last")
	}
}
