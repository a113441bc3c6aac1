package pglue

import "testing"

func TestNoticeAccessorsDefault(t *testing.T) {
	n := Notice{Fields: map[byte]string{'M': "something happened"}}
	if n.Severity() != "NOTICE" {
		t.Errorf("Severity() = %q, want default NOTICE", n.Severity())
	}
	if n.Code() != "00000" {
		t.Errorf("Code() = %q, want default 00000", n.Code())
	}
	if n.Message() != "something happened" {
		t.Errorf("Message() = %q", n.Message())
	}
}

func TestNoticeAccessorsExplicit(t *testing.T) {
	n := Notice{Fields: map[byte]string{
		'S': "WARNING",
		'C': "01000",
		'D': "detail text",
		'H': "hint text",
	}}
	if n.Severity() != "WARNING" || n.Code() != "01000" {
		t.Errorf("Severity/Code = %q/%q", n.Severity(), n.Code())
	}
	if n.Detail() != "detail text" || n.Hint() != "hint text" {
		t.Errorf("Detail/Hint = %q/%q", n.Detail(), n.Hint())
	}
}

func TestEventRegistryFansOutToAllHandlers(t *testing.T) {
	r := newEventRegistry()
	var calls []string
	r.onNotice(func(n Notice) { calls = append(calls, "first:"+n.Message()) })
	r.onNotice(func(n Notice) { calls = append(calls, "second:"+n.Message()) })

	hooks := r.toHooks()
	hooks.Notice(map[byte]string{'M': "hi"})

	if len(calls) != 2 || calls[0] != "first:hi" || calls[1] != "second:hi" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestEventRegistryNotifyFanOut(t *testing.T) {
	r := newEventRegistry()
	var gotChannel, gotPayload string
	var gotPID int32
	r.onNotify(func(channel, payload string, pid int32) {
		gotChannel, gotPayload, gotPID = channel, payload, pid
	})

	r.toHooks().Notify("orders", "created", 99)

	if gotChannel != "orders" || gotPayload != "created" || gotPID != 99 {
		t.Fatalf("got %q %q %d", gotChannel, gotPayload, gotPID)
	}
}
