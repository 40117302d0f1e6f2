package testutil

import "testing"

func TestParseSSEEvents(t *testing.T) {
	t.Parallel()

	body := "event: chunk\ndata: {\"text\":\"hello\"}\n\n" +
		": keepalive\n" +
		"data: bare\n\n" +
		"event: done\ndata: line1\ndata: line2\n\n"

	events := ParseSSEEvents(t, body)
	if len(events) != 3 {
		t.Fatalf("parsed %d events, want 3", len(events))
	}

	if events[0].Type != "chunk" || events[0].Data != `{"text":"hello"}` {
		t.Errorf("event[0] = %+v", events[0])
	}
	if events[1].Type != "message" || events[1].Data != "bare" {
		t.Errorf("event[1] = %+v, want default message type", events[1])
	}
	if events[2].Type != "done" || events[2].Data != "line1\nline2" {
		t.Errorf("event[2] = %+v, want joined data lines", events[2])
	}

	if e := FindEvent(events, "done"); e == nil || e.Data != "line1\nline2" {
		t.Errorf("FindEvent(done) = %+v", e)
	}
	if e := FindEvent(events, "absent"); e != nil {
		t.Errorf("FindEvent(absent) = %+v, want nil", e)
	}
	if got := FindAllEvents(events, "chunk"); len(got) != 1 {
		t.Errorf("FindAllEvents(chunk) = %d events, want 1", len(got))
	}
}
