package imapc

import (
	"bytes"
	"testing"
)

// drainLines feeds the whole input to a fresh Framer in one or more
// chunks and returns the sequence of LineEvent.Text values it yields,
// asserting every Next call that isn't ErrNeedMore succeeds.
func drainLines(t *testing.T, chunks [][]byte) []string {
	t.Helper()
	f := NewFramer()
	buf := newBuffer()
	var texts []string
	ci := 0
	for {
		ev, err := f.Next(buf)
		if err == ErrNeedMore {
			if ci >= len(chunks) {
				return texts
			}
			buf.append(chunks[ci])
			ci++
			continue
		}
		if err != nil {
			t.Fatalf("Framer.Next: %v", err)
		}
		le, ok := ev.(*LineEvent)
		if !ok {
			t.Fatalf("expected *LineEvent, got %T", ev)
		}
		texts = append(texts, le.Text)
	}
}

func TestFramerSimpleLine(t *testing.T) {
	got := drainLines(t, [][]byte{[]byte("A1 OK done\r\n")})
	want := []string{"A1 OK done"}
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFramerToleratesBareLF(t *testing.T) {
	got := drainLines(t, [][]byte{[]byte("A1 OK done\n")})
	if len(got) != 1 || got[0] != "A1 OK done" {
		t.Fatalf("got %q", got)
	}
}

func TestFramerLiteralExactness(t *testing.T) {
	// The literal payload contains bytes that would otherwise terminate
	// parsing early: ")", '"', and an embedded CRLF.
	payload := []byte("a)\"\r\nb")
	input := append([]byte("* 1 FETCH (TEST {"+itoa(len(payload))+"}\r\n"), payload...)
	input = append(input, []byte(")\r\n")...)

	f := NewFramer()
	buf := newBuffer()
	buf.append(input)
	ev, err := f.Next(buf)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	le := ev.(*LineEvent)
	if len(le.Literals) != 1 {
		t.Fatalf("got %d literals, want 1", len(le.Literals))
	}
	if !bytes.Equal(le.Literals[0], payload) {
		t.Fatalf("literal = %q, want %q", le.Literals[0], payload)
	}
	if want := "* 1 FETCH (TEST {B0})"; le.Text != want {
		t.Fatalf("text = %q, want %q", le.Text, want)
	}
}

func TestFramerIdempotentAcrossPartitions(t *testing.T) {
	payload := []byte("0123456789")
	whole := append([]byte("* 1 FETCH (TEST {10}\r\n"), payload...)
	whole = append(whole, []byte(")\r\n* 2 EXISTS\r\n")...)

	baseline := drainLines(t, [][]byte{whole})

	// Re-run with the same bytes split at every possible single point
	// and at a handful of multi-point partitions.
	for split := 1; split < len(whole); split++ {
		got := drainLines(t, [][]byte{whole[:split], whole[split:]})
		if len(got) != len(baseline) {
			t.Fatalf("split=%d: got %d lines, want %d", split, len(got), len(baseline))
		}
		for i := range got {
			if got[i] != baseline[i] {
				t.Fatalf("split=%d: line %d = %q, want %q", split, i, got[i], baseline[i])
			}
		}
	}

	// Byte-at-a-time feed.
	chunks := make([][]byte, len(whole))
	for i, b := range whole {
		chunks[i] = []byte{b}
	}
	got := drainLines(t, chunks)
	if len(got) != len(baseline) {
		t.Fatalf("byte-at-a-time: got %d lines, want %d", len(got), len(baseline))
	}
}

func TestFramerRejectsNonCRLFAfterLiteralHeader(t *testing.T) {
	f := NewFramer()
	buf := newBuffer()
	buf.append([]byte("* 1 FETCH (TEST {3} abc)\r\n"))
	_, err := f.Next(buf)
	if err != ErrBadLiteralSyntax {
		t.Fatalf("err = %v, want ErrBadLiteralSyntax", err)
	}
}

func TestFramerStreamsOversizedLiteral(t *testing.T) {
	f := NewFramer()
	f.StreamThreshold = 4
	buf := newBuffer()
	buf.append([]byte("* 1 FETCH (TEST {10}\r\n"))
	buf.append([]byte("0123456789)\r\n"))

	ev, err := f.Next(buf)
	if err != nil {
		t.Fatalf("Next (chunk 1): %v", err)
	}
	chunk, ok := ev.(*LiteralChunkEvent)
	if !ok {
		t.Fatalf("expected *LiteralChunkEvent, got %T", ev)
	}
	var all []byte
	all = append(all, chunk.Data...)
	for !chunk.Last {
		ev, err = f.Next(buf)
		if err != nil {
			t.Fatalf("Next (subsequent chunk): %v", err)
		}
		chunk = ev.(*LiteralChunkEvent)
		all = append(all, chunk.Data...)
	}
	if string(all) != "0123456789" {
		t.Fatalf("reassembled streamed literal = %q", all)
	}

	ev, err = f.Next(buf)
	if err != nil {
		t.Fatalf("Next (trailing line): %v", err)
	}
	le := ev.(*LineEvent)
	if want := "* 1 FETCH (TEST {B0})"; le.Text != want {
		t.Fatalf("text = %q, want %q", le.Text, want)
	}
	if le.Literals[0] != nil {
		t.Fatalf("streamed literal slot should be nil, got %v", le.Literals[0])
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
