package imapc

import "strings"

// task is one node of the explicit parse stack the FETCH parser
// drives: a stack of grammar-rule tasks standing in for the recursion
// the Go call stack would otherwise hide, so a literal mid-structure
// can suspend the parse and resume it later without losing position.
//
// step makes as much progress as the currently buffered bytes allow:
//   - done == true, err == nil:   this task is finished; pop it.
//   - done == false, err == nil:  progress was made (a child task was
//     pushed, or internal phase advanced) — the driver calls step
//     again, now on the new top of stack.
//   - err == ErrIncomplete:       no further progress is possible until
//     more bytes arrive; the stack is left exactly as it is.
//   - any other err:              the grammar rule failed outright.
type task interface {
	step(p *FetchParser) (done bool, err error)
}

// seqTask runs a fixed list of child tasks to completion, one at a
// time, in order. It is the building block every structured FETCH
// value (envelope, address, body structure) is assembled from.
type seqTask struct {
	tasks []task
	idx   int
}

func (t *seqTask) step(p *FetchParser) (bool, error) {
	if t.idx >= len(t.tasks) {
		return true, nil
	}
	child := t.tasks[t.idx]
	t.idx++
	p.push(child)
	return false, nil
}

// byteTask expects a single specific byte at the cursor, optionally
// skipping leading whitespace first.
type byteTask struct {
	want      byte
	name      string
	skipSpace bool
}

func (t *byteTask) step(p *FetchParser) (bool, error) {
	if t.skipSpace {
		scanSkipSpace(p.buf)
	}
	switch scanByteLiteral(p.buf, t.want) {
	case scanMore:
		return false, ErrIncomplete
	case scanBad:
		got, _ := p.buf.peekAt(0)
		return false, &UnexpectedTokenError{Expected: t.name, Got: string(got)}
	}
	return true, nil
}

// numberTask decodes a bare "number" token into *out.
type numberTask struct {
	out *uint64
}

func (t *numberTask) step(p *FetchParser) (bool, error) {
	scanSkipSpace(p.buf)
	n, outcome := scanNumber(p.buf)
	switch outcome {
	case scanMore:
		return false, ErrIncomplete
	case scanBad:
		if c, ok := p.buf.peekAt(0); ok && isDigit(c) {
			return false, ErrOverflow
		}
		return false, &UnexpectedTokenError{Expected: "number", Got: "non-digit"}
	}
	*t.out = n
	return true, nil
}

// atomTask decodes a bare atom token into *out, with no NIL handling —
// used for flags and other raw-keyword positions.
type atomTask struct {
	out *string
}

func (t *atomTask) step(p *FetchParser) (bool, error) {
	scanSkipSpace(p.buf)
	s, outcome := scanAtom(p.buf)
	switch outcome {
	case scanMore:
		return false, ErrIncomplete
	case scanBad:
		return false, &UnexpectedTokenError{Expected: "atom", Got: "?"}
	}
	*t.out = s
	return true, nil
}

// litState tracks an in-progress literal body, inline or streamed.
type litState struct {
	remaining int
	streaming bool
	acc       []byte
	sink      func([]byte, bool)
}

// stringTask decodes one "string" / "nstring" wire value: a quoted
// string, a literal (inline or streamed through a registered sink), or
// NIL. Grounded on the teacher's lexer.go qstring()/literal() pair,
// rewritten so each can suspend mid-token instead of blocking.
type stringTask struct {
	out   *Str
	label string // section key for sink lookup; "" if this value is
	// never large enough to warrant streaming (flags, dates, ids).

	phase  int // 0 dispatch, 1 quoted, 2 literal header, 3 literal body
	quoted []byte
	lit    *litState
}

func (t *stringTask) step(p *FetchParser) (bool, error) {
	switch t.phase {
	case 0:
		return t.stepDispatch(p)
	case 1:
		return t.stepQuoted(p)
	case 2:
		return t.stepLiteralHeader(p)
	case 3:
		return t.stepLiteralBody(p)
	}
	panic("imapc: stringTask in unknown phase")
}

func (t *stringTask) stepDispatch(p *FetchParser) (bool, error) {
	scanSkipSpace(p.buf)
	c, ok := p.buf.peekAt(0)
	if !ok {
		return false, ErrIncomplete
	}
	switch c {
	case doubleQuote:
		p.buf.advance(1)
		t.phase = 1
		return false, nil
	case leftCurly:
		t.phase = 2
		return false, nil
	default:
		s, outcome := scanAtom(p.buf)
		switch outcome {
		case scanMore:
			return false, ErrIncomplete
		case scanBad:
			return false, &UnexpectedTokenError{Expected: "string", Got: string(c)}
		}
		if !strings.EqualFold(s, "NIL") {
			return false, &UnexpectedTokenError{Expected: "NIL or string", Got: s}
		}
		*t.out = Str{Kind: StrNull}
		return true, nil
	}
}

func (t *stringTask) stepQuoted(p *FetchParser) (bool, error) {
	for {
		data := p.buf.data[p.buf.pos:]
		if len(data) == 0 {
			return false, ErrIncomplete
		}
		switch data[0] {
		case backslash:
			if len(data) < 2 {
				return false, ErrIncomplete
			}
			t.quoted = append(t.quoted, data[1])
			p.buf.advance(2)
		case doubleQuote:
			p.buf.advance(1)
			*t.out = Str{Kind: StrInline, Bytes: t.quoted}
			return true, nil
		case cr, lf:
			return false, &UnexpectedTokenError{Expected: "closing quote", Got: "CRLF"}
		default:
			t.quoted = append(t.quoted, data[0])
			p.buf.advance(1)
		}
	}
}

func (t *stringTask) stepLiteralHeader(p *FetchParser) (bool, error) {
	n, headerLen, outcome := tryParseLiteralHeader(p.buf)
	switch outcome {
	case scanMore:
		return false, ErrIncomplete
	case scanBad:
		return false, ErrBadLiteralSyntax
	}
	p.buf.advance(headerLen)

	streaming := int(n) > p.ceiling()
	var sink func([]byte, bool)
	if t.label != "" {
		sink = p.sinkFor(t.label)
	}
	if streaming && sink == nil {
		return false, ErrLiteralTooLarge
	}
	t.lit = &litState{remaining: int(n), streaming: streaming, sink: sink}
	if t.lit.remaining == 0 {
		if streaming {
			if sink != nil {
				sink(nil, true)
			}
			*t.out = Str{Kind: StrStream, Handle: newStreamHandle()}
		} else {
			*t.out = Str{Kind: StrInline, Bytes: []byte{}}
		}
		return true, nil
	}
	t.phase = 3
	return false, nil
}

func (t *stringTask) stepLiteralBody(p *FetchParser) (bool, error) {
	lit := t.lit
	avail := p.buf.remaining()
	if avail == 0 {
		return false, ErrIncomplete
	}
	take := avail
	if take > lit.remaining {
		take = lit.remaining
	}
	window, _ := p.buf.window(take)
	chunk := append([]byte(nil), window...)
	p.buf.advance(take)
	lit.remaining -= take
	done := lit.remaining == 0

	if lit.streaming {
		if lit.sink != nil {
			lit.sink(chunk, done)
		}
		if !done {
			return false, ErrIncomplete
		}
		*t.out = Str{Kind: StrStream, Handle: newStreamHandle()}
		return true, nil
	}

	lit.acc = append(lit.acc, chunk...)
	if !done {
		return false, ErrIncomplete
	}
	*t.out = Str{Kind: StrInline, Bytes: lit.acc}
	return true, nil
}

// addrListTask decodes an envelope address-list: "(" 1*address ")" or
// NIL. Each address is itself a parenthesized 4-tuple of nstrings.
type addrListTask struct {
	out *[]Address

	phase int // 0 decide NIL/open, 1 want item or close, 2 awaiting child
	cur   Address
}

func (t *addrListTask) step(p *FetchParser) (bool, error) {
	switch t.phase {
	case 0:
		scanSkipSpace(p.buf)
		c, ok := p.buf.peekAt(0)
		if !ok {
			return false, ErrIncomplete
		}
		if c != leftParen {
			s, outcome := scanAtom(p.buf)
			switch outcome {
			case scanMore:
				return false, ErrIncomplete
			case scanBad:
				return false, &UnexpectedTokenError{Expected: "NIL or address list", Got: string(c)}
			}
			if !strings.EqualFold(s, "NIL") {
				return false, &UnexpectedTokenError{Expected: "NIL or address list", Got: s}
			}
			*t.out = nil
			return true, nil
		}
		p.buf.advance(1)
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
		t.cur = Address{}
		p.push(newAddressTask(&t.cur))
		t.phase = 2
		return false, nil
	case 2:
		*t.out = append(*t.out, t.cur)
		t.phase = 1
		return false, nil
	}
	panic("imapc: addrListTask in unknown phase")
}

func newAddressTask(a *Address) task {
	return &seqTask{tasks: []task{
		&byteTask{want: leftParen, name: "(", skipSpace: true},
		&stringTask{out: &a.Name},
		&stringTask{out: &a.Adl},
		&stringTask{out: &a.Mailbox},
		&stringTask{out: &a.Host},
		&byteTask{want: rightParen, name: ")"},
	}}
}

// paramsTask decodes a body-fld-param: "(" 1*(string SP string) ")" or
// NIL, into an ordered slice of key/value pairs.
type paramsTask struct {
	out *[]Param

	phase   int
	curKey  Str
	curVal  Str
	pending bool
}

func (t *paramsTask) step(p *FetchParser) (bool, error) {
	switch t.phase {
	case 0:
		scanSkipSpace(p.buf)
		c, ok := p.buf.peekAt(0)
		if !ok {
			return false, ErrIncomplete
		}
		if c != leftParen {
			s, outcome := scanAtom(p.buf)
			switch outcome {
			case scanMore:
				return false, ErrIncomplete
			case scanBad:
				return false, &UnexpectedTokenError{Expected: "NIL or param list", Got: string(c)}
			}
			if !strings.EqualFold(s, "NIL") {
				return false, &UnexpectedTokenError{Expected: "NIL or param list", Got: s}
			}
			*t.out = nil
			return true, nil
		}
		p.buf.advance(1)
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
		// Pushed in reverse so the key (pushed last) runs first — the
		// stack is LIFO.
		p.push(&stringTask{out: &t.curVal})
		p.push(&stringTask{out: &t.curKey})
		t.phase = 2
		return false, nil
	case 2:
		*t.out = append(*t.out, Param{Key: t.curKey, Value: t.curVal})
		t.phase = 1
		return false, nil
	}
	panic("imapc: paramsTask in unknown phase")
}
