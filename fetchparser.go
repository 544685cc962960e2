package imapc

import "strings"

// FetchParser decodes one untagged FETCH response body — the
// "(" fetch-att-list ")" that follows "* <seq> FETCH " on the wire —
// into a FetchItem tree. It drives an explicit task stack (task.go)
// instead of recursive-descent Go calls so a literal payload that
// arrives split across several transport reads, or one streamed
// through a caller-supplied sink, suspends the parse cleanly and
// resumes exactly where it left off.
//
// A FetchParser instance is single-use per response: construct one,
// optionally register section sinks, call Parse repeatedly (feeding
// buf with more bytes between calls) until it returns a non-nil
// FetchItem, then discard it.
type FetchParser struct {
	buf          *buffer
	stack        []task
	item         *FetchItem
	ceilingBytes int
	sinks        map[string]func(chunk []byte, last bool)
	resolver     func(key string) (sink func(chunk []byte, last bool), ok bool)
}

// NewFetchParser creates a parser reading from buf, which the caller
// continues to append to between Parse calls.
func NewFetchParser(buf *buffer) *FetchParser {
	return &FetchParser{buf: buf}
}

// SetLiteralCeiling overrides the inline-buffering threshold (default
// 1 MiB, matching the framer's).
func (p *FetchParser) SetLiteralCeiling(n int) { p.ceilingBytes = n }

// SetSectionSink registers a streaming destination for one canonical
// section key (e.g. "BODY[1]", "BODY[]<0.4096>", "RFC822.TEXT"). A
// literal for that key larger than the ceiling is streamed through
// sink instead of buffered; without a registered sink, an oversized
// literal for that key fails the response with ErrLiteralTooLarge.
func (p *FetchParser) SetSectionSink(key string, sink func(chunk []byte, last bool)) {
	if p.sinks == nil {
		p.sinks = make(map[string]func([]byte, bool))
	}
	p.sinks[key] = sink
}

// SetSinkResolver registers a fallback resolved dynamically per
// section key, consulted when no sink was registered via
// SetSectionSink for that exact key. The engine uses this to let a
// caller decide, per in-flight FETCH response, which sections (if any)
// should stream rather than buffer.
func (p *FetchParser) SetSinkResolver(r func(key string) (sink func(chunk []byte, last bool), ok bool)) {
	p.resolver = r
}

func (p *FetchParser) push(t task) { p.stack = append(p.stack, t) }
func (p *FetchParser) sinkFor(key string) func([]byte, bool) {
	if p.sinks != nil {
		if s, ok := p.sinks[key]; ok {
			return s
		}
	}
	if p.resolver != nil {
		if s, ok := p.resolver(key); ok {
			return s
		}
	}
	return nil
}
func (p *FetchParser) ceiling() int {
	if p.ceilingBytes > 0 {
		return p.ceilingBytes
	}
	return defaultLiteralCeiling
}

// Parse attempts to decode the fetch-att-list for message sequence
// number seq. It returns (item, nil) once complete, (nil,
// ErrIncomplete) when it needs more buffered bytes (call again after
// appending more), or (nil, err) on a grammar failure — at which point
// this FetchParser must be discarded; the failure is scoped to this
// one response, not the connection.
func (p *FetchParser) Parse(seq int32) (*FetchItem, error) {
	if p.item == nil {
		p.item = newFetchItem(seq)
		p.stack = []task{newFetchBodyTask(p.item)}
	}
	for {
		if len(p.stack) == 0 {
			item := p.item
			p.item = nil
			return item, nil
		}
		top := p.stack[len(p.stack)-1]
		done, err := top.step(p)
		if err != nil {
			if err == ErrIncomplete {
				return nil, ErrIncomplete
			}
			p.item = nil
			p.stack = nil
			return nil, err
		}
		if done {
			p.stack = p.stack[:len(p.stack)-1]
		}
	}
}

// fetchBodyTask drives "(" fetch-att *(SP fetch-att) ")" CRLF. The
// trailing CRLF is part of this task (not left for the caller) so that
// once Parse returns successfully, the cursor sits exactly where the
// next response line begins — Router.Next never has to special-case a
// leftover line terminator.
type fetchBodyTask struct {
	item  *FetchItem
	phase int // 0 want '(', 1 want attr-or-close, 2 awaiting attr child, 3 want CRLF
}

func newFetchBodyTask(item *FetchItem) task { return &fetchBodyTask{item: item} }

func (t *fetchBodyTask) step(p *FetchParser) (bool, error) {
	switch t.phase {
	case 0:
		scanSkipSpace(p.buf)
		switch scanByteLiteral(p.buf, leftParen) {
		case scanMore:
			return false, ErrIncomplete
		case scanBad:
			got, _ := p.buf.peekAt(0)
			return false, &UnexpectedTokenError{Expected: "(", Got: string(got)}
		}
		t.phase = 1
		return false, nil
	case 1:
		scanSkipSpace(p.buf)
		c, ok := p.buf.peekAt(0)
		if !ok {
			return false, ErrIncomplete
		}
		if c == rightParen {
			p.buf.advance(1)
			t.phase = 3
			return false, nil
		}
		t.phase = 2
		p.push(&fetchAttrTask{item: t.item})
		return false, nil
	case 2:
		t.phase = 1
		return false, nil
	case 3:
		return t.stepCRLF(p)
	}
	panic("imapc: fetchBodyTask in unknown phase")
}

// stepCRLF consumes the line terminator following the closing ")",
// tolerating a bare LF on inbound per the same rule the framer applies.
func (t *fetchBodyTask) stepCRLF(p *FetchParser) (bool, error) {
	c, ok := p.buf.peekAt(0)
	if !ok {
		return false, ErrIncomplete
	}
	switch c {
	case lf:
		p.buf.advance(1)
		return true, nil
	case cr:
		c1, ok := p.buf.peekAt(1)
		if !ok {
			return false, ErrIncomplete
		}
		if c1 != lf {
			return false, &UnexpectedTokenError{Expected: "LF after CR", Got: string(c1)}
		}
		p.buf.advance(2)
		return true, nil
	}
	return false, &UnexpectedTokenError{Expected: "CRLF", Got: string(c)}
}

// fetchAttrTask decodes one "key SP value" fetch attribute and writes
// its decoded value directly into the shared FetchItem. The phase
// numbers from 10 up each correspond to a distinct "commit the child's
// result" step, since different keys commit differently.
type fetchAttrTask struct {
	item  *FetchItem
	phase int

	key           string
	sectionSuffix string
	partialSuffix string
	tmpStr        Str
	tmpUint       uint64
}

const (
	phaseFlagsDone = 10 + iota
	phaseUIDDone
	phaseSizeDone
	phaseInternalDateDone
	phaseStructureDone
	phaseSectionDecided
	phaseSectionValueDone
	phaseWholeMessageDone
)

func (t *fetchAttrTask) step(p *FetchParser) (bool, error) {
	switch t.phase {
	case 0:
		return t.stepKeyword(p)
	case phaseFlagsDone, phaseStructureDone:
		return true, nil
	case phaseUIDDone:
		t.item.UID = t.tmpUint
		return true, nil
	case phaseSizeDone:
		t.item.RFC822Size = t.tmpUint
		return true, nil
	case phaseInternalDateDone:
		t.item.InternalDate = t.tmpStr.String()
		return true, nil
	case phaseSectionDecided:
		return t.stepSectionDecided(p)
	case phaseSectionValueDone, phaseWholeMessageDone:
		t.commitPayload()
		return true, nil
	}
	panic("imapc: fetchAttrTask in unknown phase")
}

func (t *fetchAttrTask) stepKeyword(p *FetchParser) (bool, error) {
	scanSkipSpace(p.buf)
	s, outcome := scanAtom(p.buf)
	switch outcome {
	case scanMore:
		return false, ErrIncomplete
	case scanBad:
		got, _ := p.buf.peekAt(0)
		return false, &UnexpectedTokenError{Expected: "fetch attribute", Got: string(got)}
	}
	t.key = strings.ToUpper(s)

	switch t.key {
	case "FLAGS":
		t.item.HasFlags = true
		t.phase = phaseFlagsDone
		p.push(&flagsListTask{out: &t.item.Flags})
	case "UID":
		t.item.HasUID = true
		t.phase = phaseUIDDone
		p.push(&numberTask{out: &t.tmpUint})
	case "RFC822.SIZE":
		t.item.HasRFC822Size = true
		t.phase = phaseSizeDone
		p.push(&numberTask{out: &t.tmpUint})
	case "INTERNALDATE":
		t.item.HasInternalDate = true
		t.phase = phaseInternalDateDone
		p.push(&stringTask{out: &t.tmpStr})
	case "ENVELOPE":
		t.item.Envelope = &Envelope{}
		t.phase = phaseStructureDone
		p.push(newEnvelopeTask(t.item.Envelope))
	case "BODYSTRUCTURE":
		t.item.Body = &BodyStructure{}
		t.phase = phaseStructureDone
		p.push(newBodyStructureTask(t.item.Body))
	case "BODY":
		t.phase = phaseSectionDecided
		p.push(&sectionTask{Out: &t.sectionSuffix, Partial: &t.partialSuffix})
	case "RFC822", "RFC822.HEADER", "RFC822.TEXT":
		t.phase = phaseWholeMessageDone
		p.push(&stringTask{out: &t.tmpStr, label: t.key})
	default:
		return false, &UnknownFetchItemError{Name: s}
	}
	return false, nil
}

func (t *fetchAttrTask) stepSectionDecided(p *FetchParser) (bool, error) {
	if t.sectionSuffix == "" {
		// Bare "BODY": the non-extensible body structure.
		t.item.Body = &BodyStructure{}
		t.phase = phaseStructureDone
		p.push(newBodyStructureTask(t.item.Body))
		return false, nil
	}
	t.key = "BODY" + t.sectionSuffix + t.partialSuffix
	t.phase = phaseSectionValueDone
	p.push(&stringTask{out: &t.tmpStr, label: t.key})
	return false, nil
}

// commitPayload stores the decoded section value, keeping NIL
// (absent) distinguishable from an empty string (present, zero
// length): a NIL section is simply never added to Sections, so
// callers tell the two apart with a plain map lookup.
func (t *fetchAttrTask) commitPayload() {
	switch t.tmpStr.Kind {
	case StrNull:
		return
	case StrStream:
		t.item.Sections[t.key] = Payload{Streamed: true, Handle: t.tmpStr.Handle}
	default:
		t.item.Sections[t.key] = Payload{Inline: t.tmpStr.Bytes}
	}
}

// flagsListTask decodes the FLAGS value: "(" *(flag SP) flag ")" — the
// list is always present, possibly empty, never NIL.
type flagsListTask struct {
	out   *[]string
	phase int // 0 want '(', 1 want flag-or-close, 2 awaiting flag child
	cur   string
}

func (t *flagsListTask) step(p *FetchParser) (bool, error) {
	switch t.phase {
	case 0:
		scanSkipSpace(p.buf)
		switch scanByteLiteral(p.buf, leftParen) {
		case scanMore:
			return false, ErrIncomplete
		case scanBad:
			got, _ := p.buf.peekAt(0)
			return false, &UnexpectedTokenError{Expected: "(", Got: string(got)}
		}
		t.phase = 1
		return false, nil
	case 1:
		scanSkipSpace(p.buf)
		c, ok := p.buf.peekAt(0)
		if !ok {
			return false, ErrIncomplete
		}
		if c == rightParen {
			p.buf.advance(1)
			return true, nil
		}
		t.phase = 2
		p.push(&atomTask{out: &t.cur})
		return false, nil
	case 2:
		*t.out = append(*t.out, t.cur)
		t.phase = 1
		return false, nil
	}
	panic("imapc: flagsListTask in unknown phase")
}
