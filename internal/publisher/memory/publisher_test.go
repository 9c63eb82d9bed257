package memory

import (
	"context"
	"testing"
)

func TestPublisherRecordsRunEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "quill.runs", map[string]any{
		"run_id": "run-1",
		"status": "succeeded",
	})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "quill.audit", map[string]any{
		"run_id": "run-2",
		"status": "failed",
	})
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	events := pub.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Fatalf("sequence numbers out of order: %+v", events)
	}
	if events[0].Published.IsZero() {
		t.Fatal("publish time not stamped")
	}
	payload, ok := events[1].Payload.(map[string]any)
	if !ok || payload["run_id"] != "run-2" {
		t.Fatalf("payload not recorded correctly: %+v", events[1])
	}

	audit := pub.OnTopic("quill.audit")
	if len(audit) != 1 || audit[0].Seq != 2 {
		t.Fatalf("topic filter wrong: %+v", audit)
	}

	events[0].Topic = "modified"
	if pub.Events()[0].Topic == "modified" {
		t.Fatal("expected Events() to return a copy")
	}
}

func TestPublisherHonorsContext(t *testing.T) {
	t.Parallel()

	pub := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pub.Publish(ctx, "quill.runs", nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(pub.Events()) != 0 {
		t.Fatal("cancelled publish must not be recorded")
	}
}
