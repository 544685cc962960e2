package imapc

import (
	"strconv"
	"testing"
)

// parseFetchBody drives a fresh FetchParser to completion against body,
// fed in the given chunk sizes (chunkSize <= 0 means "feed it all at
// once"), and returns the decoded FetchItem.
func parseFetchBody(t *testing.T, body string, chunkSize int) *FetchItem {
	t.Helper()
	buf := newBuffer()
	p := NewFetchParser(buf)

	data := []byte(body)
	if chunkSize <= 0 {
		chunkSize = len(data)
	}
	pos := 0
	for {
		item, err := p.Parse(42)
		if err == nil {
			return item
		}
		if err != ErrIncomplete {
			t.Fatalf("Parse: %v", err)
		}
		if pos >= len(data) {
			t.Fatalf("ran out of input still needing more (buffered so far: %q)", buf.data)
		}
		end := pos + chunkSize
		if end > len(data) {
			end = len(data)
		}
		buf.append(data[pos:end])
		pos = end
	}
}

func TestFetchFlagsOnly(t *testing.T) {
	item := parseFetchBody(t, "(FLAGS (\\Seen))\r\n", 0)
	if len(item.Flags) != 1 || item.Flags[0] != `\Seen` {
		t.Fatalf("Flags = %v", item.Flags)
	}
}

func TestFetchFlagsInternaldateSize(t *testing.T) {
	item := parseFetchBody(t,
		"(FLAGS (\\Seen) INTERNALDATE \"2013-01-01 14:24:00\" RFC822.SIZE 1024)\r\n", 0)
	if len(item.Flags) != 1 || item.Flags[0] != `\Seen` {
		t.Fatalf("Flags = %v", item.Flags)
	}
	if item.InternalDate != "2013-01-01 14:24:00" {
		t.Fatalf("InternalDate = %q", item.InternalDate)
	}
	if item.RFC822Size != 1024 {
		t.Fatalf("RFC822Size = %d", item.RFC822Size)
	}
}

func TestFetchLiteralString(t *testing.T) {
	item := parseFetchBody(t, "(TEST {5}\r\n12345)\r\n", 0)
	got, ok := item.Sections["TEST"]
	if !ok {
		t.Fatalf("Sections[TEST] missing; have %v", item.Sections)
	}
	if string(got.Inline) != "12345" {
		t.Fatalf("TEST section = %q", got.Inline)
	}
}

func TestFetchEmptyStringVsNIL(t *testing.T) {
	withEmpty := parseFetchBody(t, "(BODY[HEADER] \"\")\r\n", 0)
	p, ok := withEmpty.Sections["BODY[HEADER]"]
	if !ok || string(p.Inline) != "" {
		t.Fatalf("BODY[HEADER] = %+v, want present empty", p)
	}

	withNil := parseFetchBody(t, "(BODY[HEADER] NIL)\r\n", 0)
	if _, ok := withNil.Sections["BODY[HEADER]"]; ok {
		t.Fatalf("BODY[HEADER] should be absent for NIL, got %+v", withNil.Sections["BODY[HEADER]"])
	}
}

func TestFetchUnknownItemFails(t *testing.T) {
	buf := newBuffer()
	buf.append([]byte("(BOGUSITEM foo)"))
	p := NewFetchParser(buf)
	_, err := p.Parse(1)
	var unk *UnknownFetchItemError
	if err == nil {
		t.Fatal("expected an error for an unknown fetch item")
	}
	if as, ok := err.(*UnknownFetchItemError); ok {
		unk = as
	}
	if unk == nil {
		t.Fatalf("err = %v (%T), want *UnknownFetchItemError", err, err)
	}
}

func TestFetchLiteralSplitAcrossReads(t *testing.T) {
	whole := rfc3501SampleFetch()
	// Feed the input split so that the ENVELOPE date literal's header
	// begins in one chunk and its body continues in the next: locate
	// the literal sentinel and split a few bytes into it.
	needle := "{" + strconv.Itoa(len(rfc3501SampleDate)) + "}\r\n"
	idx := indexOf(whole, needle)
	if idx < 0 {
		t.Fatalf("test fixture missing the expected %q literal", needle)
	}
	splitAt := idx + len(needle) + 5

	oneShot := parseFetchBody(t, whole, 0)
	split := parseFetchBodyChunks(t, whole, []int{splitAt, len(whole)})

	assertRFC3501Sample(t, oneShot)
	assertRFC3501Sample(t, split)
}

func TestFetchRFC3501Sample(t *testing.T) {
	item := parseFetchBody(t, rfc3501SampleFetch(), 0)
	assertRFC3501Sample(t, item)
}

func TestFetchRFC3501SampleByteAtATime(t *testing.T) {
	item := parseFetchBody(t, rfc3501SampleFetch(), 1)
	assertRFC3501Sample(t, item)
}

func assertRFC3501Sample(t *testing.T, item *FetchItem) {
	t.Helper()
	if len(item.Flags) != 1 || item.Flags[0] != `\Seen` {
		t.Fatalf("Flags = %v", item.Flags)
	}
	if item.InternalDate != "17-Jul-1996 02:44:25 -0700" {
		t.Fatalf("InternalDate = %q", item.InternalDate)
	}
	if item.RFC822Size != 4286 {
		t.Fatalf("RFC822Size = %d", item.RFC822Size)
	}
	env := item.Envelope
	if env == nil {
		t.Fatal("Envelope is nil")
	}
	if got := env.Date.String(); got != "Wed, 17 Jul 1996 02:23:25 -0700 (PDT)" {
		t.Fatalf("Envelope.Date = %q", got)
	}
	if got := env.Subject.String(); got != "IMAP4rev1 WG mtg summary and minutes" {
		t.Fatalf("Envelope.Subject = %q", got)
	}
	for _, addrList := range [][]Address{env.From, env.Sender, env.ReplyTo} {
		if len(addrList) != 1 {
			t.Fatalf("expected one address, got %d (%+v)", len(addrList), addrList)
		}
		a := addrList[0]
		if a.Name.String() != "Terry Gray" || a.Mailbox.String() != "gray" || a.Host.String() != "cac.washington.edu" {
			t.Fatalf("address = %+v", a)
		}
	}
	if len(env.To) != 1 || env.To[0].Mailbox.String() != "imap" || env.To[0].Host.String() != "cac.washington.edu" {
		t.Fatalf("To = %+v", env.To)
	}
	if len(env.Cc) != 2 {
		t.Fatalf("Cc = %+v, want 2 addresses", env.Cc)
	}
	if env.Cc[0].Mailbox.String() != "minutes" || env.Cc[0].Host.String() != "CNRI.Reston.VA.US" {
		t.Fatalf("Cc[0] = %+v", env.Cc[0])
	}
	if env.Cc[1].Name.String() != "John Klensin" || env.Cc[1].Mailbox.String() != "KLENSIN" || env.Cc[1].Host.String() != "MIT.EDU" {
		t.Fatalf("Cc[1] = %+v", env.Cc[1])
	}
	if len(env.Bcc) != 0 {
		t.Fatalf("Bcc should be absent, got %+v", env.Bcc)
	}
	if !env.InReplyTo.IsNil() {
		t.Fatalf("InReplyTo should be NIL, got %+v", env.InReplyTo)
	}
	if got := env.MessageID.String(); got != "<B27397-0100000@cac.washington.edu>" {
		t.Fatalf("MessageID = %q", got)
	}

	body := item.Body
	if body == nil {
		t.Fatal("Body is nil")
	}
	if body.Multipart {
		t.Fatal("Body should be a single part")
	}
	if got := body.Type.String(); got != "TEXT" {
		t.Fatalf("Body.Type = %q", got)
	}
	if got := body.Subtype.String(); got != "PLAIN" {
		t.Fatalf("Body.Subtype = %q", got)
	}
	if len(body.Params) != 1 || body.Params[0].Key.String() != "CHARSET" || body.Params[0].Value.String() != "US-ASCII" {
		t.Fatalf("Body.Params = %+v", body.Params)
	}
	if got := body.Encoding.String(); got != "7BIT" {
		t.Fatalf("Body.Encoding = %q", got)
	}
	if body.Size != 3028 {
		t.Fatalf("Body.Size = %d", body.Size)
	}
	if body.Lines != 92 {
		t.Fatalf("Body.Lines = %d", body.Lines)
	}
}

// rfc3501SampleDate is encoded as a literal rather than a quoted
// string so a split-literal test has something concrete to split
// mid-token.
const rfc3501SampleDate = "Wed, 17 Jul 1996 02:23:25 -0700 (PDT)"

// rfc3501SampleFetch is the FETCH response body from RFC 3501 §7.4.2.
func rfc3501SampleFetch() string {
	date := rfc3501SampleDate
	return `(FLAGS (\Seen) INTERNALDATE "17-Jul-1996 02:44:25 -0700" ` +
		`RFC822.SIZE 4286 ENVELOPE ({` + strconv.Itoa(len(date)) + `}` + "\r\n" + date +
		` "IMAP4rev1 WG mtg summary and minutes" ` +
		`(("Terry Gray" NIL "gray" "cac.washington.edu")) ` +
		`(("Terry Gray" NIL "gray" "cac.washington.edu")) ` +
		`(("Terry Gray" NIL "gray" "cac.washington.edu")) ` +
		`((NIL NIL "imap" "cac.washington.edu")) ` +
		`((NIL NIL "minutes" "CNRI.Reston.VA.US")("John Klensin" NIL "KLENSIN" "MIT.EDU")) ` +
		`NIL ` +
		`NIL ` +
		`"<B27397-0100000@cac.washington.edu>") ` +
		`BODY ("TEXT" "PLAIN" ("CHARSET" "US-ASCII") NIL NIL "7BIT" 3028 92))` + "\r\n"
}

// parseFetchBodyChunks drives the parser using exactly the split
// points given (absolute byte offsets into body, strictly increasing,
// ending at len(body)).
func parseFetchBodyChunks(t *testing.T, body string, splits []int) *FetchItem {
	t.Helper()
	buf := newBuffer()
	p := NewFetchParser(buf)

	data := []byte(body)
	pos := 0
	for {
		item, err := p.Parse(42)
		if err == nil {
			return item
		}
		if err != ErrIncomplete {
			t.Fatalf("Parse: %v", err)
		}
		if pos >= len(data) {
			t.Fatalf("ran out of input still needing more")
		}
		end := splits[0]
		splits = splits[1:]
		buf.append(data[pos:end])
		pos = end
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
