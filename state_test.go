package imapc

import "testing"

func TestConnectionStateString(t *testing.T) {
	cases := map[ConnectionState]string{
		ConnectionClosed:      "ConnectionClosed",
		ConnectionEstablished: "ConnectionEstablished",
		ServerGreeting:        "ServerGreeting",
		NotAuthenticated:      "NotAuthenticated",
		Authenticated:         "Authenticated",
		Selected:              "Selected",
		Logout:                "Logout",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
	if got := ConnectionState(99).String(); got != "ConnectionState(99)" {
		t.Errorf("unknown state String() = %q", got)
	}
}

func TestLegalInTable(t *testing.T) {
	cases := []struct {
		cmd   string
		state ConnectionState
		want  bool
	}{
		{"LOGIN", NotAuthenticated, true},
		{"LOGIN", Authenticated, false},
		{"LOGIN", Selected, false},
		{"SELECT", Authenticated, true},
		{"SELECT", Selected, true},
		{"SELECT", NotAuthenticated, false},
		{"FETCH", Selected, true},
		{"FETCH", Authenticated, false},
		{"FETCH", NotAuthenticated, false},
		{"CAPABILITY", NotAuthenticated, true},
		{"CAPABILITY", Authenticated, true},
		{"CAPABILITY", Selected, true},
		{"CAPABILITY", ConnectionClosed, false},
		{"NOOP", Selected, true},
		{"LOGOUT", Authenticated, true},
		{"IDLE", NotAuthenticated, false},
		{"IDLE", Authenticated, true},
		{"IDLE", Selected, true},
		{"STARTTLS", NotAuthenticated, true},
		{"STARTTLS", Authenticated, false},
		// A verb absent from the table defaults to "authenticated or later".
		{"ENABLE", Authenticated, true},
		{"ENABLE", NotAuthenticated, false},
	}
	for _, c := range cases {
		if got := legalIn(c.cmd, c.state); got != c.want {
			t.Errorf("legalIn(%q, %s) = %v, want %v", c.cmd, c.state, got, c.want)
		}
	}
}
