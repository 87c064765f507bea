package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfClassifiesAppErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{NewNotFound("report %s missing", "r-1"), ErrorKindNotFound},
		{NewConflict("double generation"), ErrorKindConflict},
		{NewUnauthorized("no user"), ErrorKindUnauthorized},
		{NewForbidden("not the creator"), ErrorKindForbidden},
	}
	for _, testCase := range cases {
		if got := KindOf(testCase.err); got != testCase.want {
			t.Fatalf("expected %s, got %s", testCase.want, got)
		}
	}
}

func TestKindOfSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handling request: %w", NewConflict("already generated"))
	if got := KindOf(wrapped); got != ErrorKindConflict {
		t.Fatalf("expected conflict through wrapping, got %s", got)
	}
}

func TestKindOfPlainErrorIsEmpty(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty kind, got %s", got)
	}
}

func TestAccumulatorDrainsOnce(t *testing.T) {
	accumulator := NewAccumulator()
	accumulator.Add(ReportDeleted{ReportID: "r-1"})
	accumulator.Add(ReportMediaDeleted{MediaID: "m-1", ReportID: "r-1"})

	drained := accumulator.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 events, got %d", len(drained))
	}
	if len(accumulator.Drain()) != 0 {
		t.Fatalf("expected accumulator empty after drain")
	}
}
