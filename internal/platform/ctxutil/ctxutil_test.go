package ctxutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestRequestDataRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := LearnerID(ctx); got != uuid.Nil {
		t.Fatalf("empty context learner = %s", got)
	}
	id := uuid.New()
	ctx = WithRequestData(ctx, &RequestData{LearnerID: id})
	if got := LearnerID(ctx); got != id {
		t.Fatalf("learner = %s, want %s", got, id)
	}
}

func TestLogFields(t *testing.T) {
	if f := LogFields(context.Background()); len(f) != 0 {
		t.Fatalf("empty context fields = %v", f)
	}
	id := uuid.New()
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t1", RequestID: "r1"})
	ctx = WithRequestData(ctx, &RequestData{LearnerID: id})

	got := LogFields(ctx)
	want := []interface{}{"trace_id", "t1", "request_id", "r1", "learner_id", id.String()}
	if len(got) != len(want) {
		t.Fatalf("fields = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("field %d = %v, want %v", i, got[i], want[i])
		}
	}
}
