package imapc

import "github.com/google/uuid"

// StrKind distinguishes the three shapes an IMAP "string" value can
// take on the wire: absent (NIL), fully buffered, or streamed because
// it exceeded the parser's inline threshold.
type StrKind int

const (
	StrNull StrKind = iota
	StrInline
	StrStream
)

// StreamHandle identifies a literal that was routed to a caller-owned
// sink instead of being buffered. The engine retains no copy of the
// bytes once streamed.
type StreamHandle struct {
	ID uuid.UUID
}

// Str is the universal decoded shape for an IMAP string/nstring/
// literal position: NIL, an empty or non-empty quoted/literal value,
// or a streamed literal. NIL and "" are always kept distinguishable.
type Str struct {
	Kind   StrKind
	Bytes  []byte
	Handle StreamHandle
}

// IsNil reports whether the value was the IMAP atom NIL.
func (s Str) IsNil() bool { return s.Kind == StrNull }

// String returns the decoded text for an inline value, or "" for NIL
// and streamed values (use Handle to consume a streamed value).
func (s Str) String() string {
	if s.Kind != StrInline {
		return ""
	}
	return string(s.Bytes)
}

func newStreamHandle() StreamHandle {
	return StreamHandle{ID: uuid.New()}
}

// Payload is the decoded value of one BODY[section] fetch item: either
// the section content inline, or a handle to bytes that were streamed
// to a caller-supplied sink.
type Payload struct {
	Inline   []byte
	Streamed bool
	Handle   StreamHandle
}

// FetchItem is the decoded tree for one FETCH response, keyed by the
// message's sequence number within the current mailbox.
type FetchItem struct {
	SeqNum int32

	Flags        []string
	HasFlags     bool
	InternalDate string
	HasInternalDate bool
	RFC822Size   uint64
	HasRFC822Size bool
	UID          uint64
	HasUID       bool
	Envelope     *Envelope
	Body         *BodyStructure

	// Sections maps a section key (e.g. "BODY[]", "BODY[HEADER]",
	// "BODY[1.2]<0>") to its decoded payload.
	Sections map[string]Payload
}

func newFetchItem(seq int32) *FetchItem {
	return &FetchItem{SeqNum: seq, Sections: make(map[string]Payload)}
}
