package imapc

import "testing"

func TestFeedFetchThenTaggedOKSurvives(t *testing.T) {
	e := NewEngine()
	e.state = Selected

	var fetched *FetchItem
	e.OnFetch(func(item *FetchItem) { fetched = item })

	var fetchErr error
	fetchDone := false
	if err := e.Fetch("12", "(FLAGS)", false, func(err error) {
		fetchDone = true
		fetchErr = err
	}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	tag, ok := e.dispatcher.Drain()
	if !ok {
		t.Fatal("expected the FETCH command to be queued for writing")
	}
	if string(tag) != "A0001 FETCH 12 (FLAGS)\r\n" {
		t.Fatalf("outbound command = %q", tag)
	}

	if err := e.Feed([]byte("* 12 FETCH (FLAGS (\\Seen))\r\nA0001 OK FETCH completed\r\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if fetched == nil {
		t.Fatal("OnFetch callback never fired")
	}
	if len(fetched.Flags) != 1 || fetched.Flags[0] != `\Seen` {
		t.Fatalf("Flags = %v", fetched.Flags)
	}
	if !fetchDone || fetchErr != nil {
		t.Fatalf("fetchDone=%v fetchErr=%v", fetchDone, fetchErr)
	}

	// The connection must still be usable: a follow-up NOOP completes
	// normally instead of inheriting a broken parse state.
	var noopErr error
	noopDone := false
	e.dispatcher.Enqueue("NOOP", nil, func(_, _ string, err error) {
		noopDone = true
		noopErr = err
	})
	if err := e.Feed([]byte("A0002 OK NOOP completed\r\n")); err != nil {
		t.Fatalf("Feed (noop): %v", err)
	}
	if !noopDone || noopErr != nil {
		t.Fatalf("noopDone=%v noopErr=%v", noopDone, noopErr)
	}
}

func TestParseMailboxListingDecodesModifiedUTF7(t *testing.T) {
	// "Senté" encoded per RFC 3501 §5.1.3.
	l := parseMailboxListing(`(\HasNoChildren) "/" "Sent&AOk-"`)
	if l.Delimiter != "/" {
		t.Fatalf("Delimiter = %q", l.Delimiter)
	}
	if l.Name != "Senté" {
		t.Fatalf("Name = %q, want decoded mailbox name", l.Name)
	}
}

func TestParseMailboxListingPassesThroughPlainASCII(t *testing.T) {
	l := parseMailboxListing(`(\HasNoChildren) "/" "INBOX"`)
	if l.Name != "INBOX" {
		t.Fatalf("Name = %q", l.Name)
	}
}

func TestFeedUnknownFetchItemResyncs(t *testing.T) {
	e := NewEngine()
	e.state = Selected

	var fetchedSeqs []int32
	e.OnFetch(func(item *FetchItem) { fetchedSeqs = append(fetchedSeqs, item.SeqNum) })
	if err := e.Fetch("1:2", "(FLAGS)", false, nil); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	err := e.Feed([]byte(
		"* 1 FETCH (BOGUSITEM foo)\r\n" +
			"* 2 FETCH (FLAGS (\\Seen))\r\n" +
			"A0001 OK FETCH completed\r\n",
	))
	if err != nil {
		t.Fatalf("Feed: %v, want the connection to survive an unrecognised fetch item", err)
	}
	if len(fetchedSeqs) != 1 || fetchedSeqs[0] != 2 {
		t.Fatalf("fetchedSeqs = %v, want only seq 2 to have completed", fetchedSeqs)
	}
}
