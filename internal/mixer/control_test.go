package mixer

import "testing"

func TestParseCommandCaseInsensitiveAndTrimmed(t *testing.T) {
	cases := map[string]Command{
		"DRAIN":    CmdDrain,
		" drain\n": CmdDrain,
		"Drop":     CmdDrop,
		"pause":    CmdPause,
		"RESUME":   CmdResume,
		"bogus":    CmdInvalid,
		"":         CmdInvalid,
	}
	for in, want := range cases {
		if got := ParseCommand(in); got != want {
			t.Fatalf("ParseCommand(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDispatchPauseRespondsOK(t *testing.T) {
	c := NewClient("a", 64, 0, 8)
	if got := Dispatch(c, CmdPause, nil); got != "OK" {
		t.Fatalf("Dispatch(PAUSE) = %q, want OK", got)
	}
	if c.State() != ClientPaused {
		t.Fatalf("state after Dispatch(PAUSE) = %v, want PAUSED", c.State())
	}
}

func TestDispatchDropRespondsOK(t *testing.T) {
	c := NewClient("a", 64, 0, 8)
	if got := Dispatch(c, CmdDrop, nil); got != "OK" {
		t.Fatalf("Dispatch(DROP) = %q, want OK", got)
	}
	if c.State() != ClientFinished {
		t.Fatalf("state after Dispatch(DROP) = %v, want FINISHED", c.State())
	}
}

func TestDispatchResumeRespondsOK(t *testing.T) {
	c := NewClient("a", 64, 0, 8)
	c.setState(ClientPaused)
	if got := Dispatch(c, CmdResume, nil); got != "OK" {
		t.Fatalf("Dispatch(RESUME) = %q, want OK", got)
	}
}

func TestDispatchDrainDefersReply(t *testing.T) {
	c := NewClient("a", 64, 0, 8)
	if got := Dispatch(c, CmdDrain, func(string) {}); got != "" {
		t.Fatalf("Dispatch(DRAIN) immediate reply = %q, want empty (deferred)", got)
	}
	if c.State() != ClientDraining {
		t.Fatalf("state after Dispatch(DRAIN) = %v, want DRAINING", c.State())
	}
}

func TestDispatchInvalidRepliesInvalid(t *testing.T) {
	c := NewClient("a", 64, 0, 8)
	if got := Dispatch(c, CmdInvalid, nil); got != "Invalid" {
		t.Fatalf("Dispatch(invalid) = %q, want Invalid", got)
	}
}
