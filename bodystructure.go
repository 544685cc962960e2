package imapc

import "strings"

// BodyStructure is the decoded FETCH BODYSTRUCTURE (or BODY) value,
// RFC 3501 §7.4.2. Single-part and multipart bodies share one struct:
// Multipart distinguishes which fields are populated. Extension data
// (body-fld-md5, disposition, language, location and any further
// body-extension values) is intentionally not modelled field-by-field
// — most clients never consult it, and the grammar allows the server
// to omit any suffix of it — so the parser skips over it generically.
type BodyStructure struct {
	Multipart bool

	// Single-part fields (Multipart == false).
	Type        Str
	Subtype     Str
	Params      []Param
	ID          Str
	Description Str
	Encoding    Str
	Size        uint64
	Lines       uint64 // only set for TEXT and MESSAGE/RFC822 parts

	// Populated only when Type/Subtype is "MESSAGE"/"RFC822".
	Envelope *Envelope
	Child    *BodyStructure

	// Multipart fields (Multipart == true). Subtype is reused above.
	Parts []*BodyStructure
}

func newBodyStructureTask(b *BodyStructure) task {
	return &bodyStructureTask{b: b}
}

type bodyStructureTask struct {
	b     *BodyStructure
	phase int
}

func (t *bodyStructureTask) step(p *FetchParser) (bool, error) {
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
		scanSkipSpace(p.buf)
		c, ok := p.buf.peekAt(0)
		if !ok {
			return false, ErrIncomplete
		}
		if c == leftParen {
			t.b.Multipart = true
			t.phase = 1
			return false, nil
		}
		t.phase = 3
		p.push(newSinglePartFieldsTask(t.b))
		return false, nil
	case 1:
		scanSkipSpace(p.buf)
		c, ok := p.buf.peekAt(0)
		if !ok {
			return false, ErrIncomplete
		}
		if c == leftParen {
			child := &BodyStructure{}
			t.b.Parts = append(t.b.Parts, child)
			p.push(newBodyStructureTask(child))
			return false, nil
		}
		t.phase = 2
		p.push(&stringTask{out: &t.b.Subtype})
		return false, nil
	case 2, 3:
		t.phase = 4
		p.push(&skipExtensionTailTask{})
		return false, nil
	case 4:
		return true, nil
	}
	panic("imapc: bodyStructureTask in unknown phase")
}

func newSinglePartFieldsTask(b *BodyStructure) task {
	return &seqTask{tasks: []task{
		&stringTask{out: &b.Type},
		&stringTask{out: &b.Subtype},
		&paramsTask{out: &b.Params},
		&stringTask{out: &b.ID},
		&stringTask{out: &b.Description},
		&stringTask{out: &b.Encoding},
		&numberTask{out: &b.Size},
		&bodyTypeSpecificTask{b: b},
	}}
}

// bodyTypeSpecificTask pushes the extra fields that only appear for
// TEXT (lines count) or MESSAGE/RFC822 (nested envelope, nested body,
// lines count) parts, once Type/Subtype are known.
type bodyTypeSpecificTask struct {
	b      *BodyStructure
	pushed bool
}

func (t *bodyTypeSpecificTask) step(p *FetchParser) (bool, error) {
	if t.pushed {
		return true, nil
	}
	t.pushed = true

	typ := strings.ToUpper(t.b.Type.String())
	sub := strings.ToUpper(t.b.Subtype.String())
	switch {
	case typ == "TEXT":
		p.push(&numberTask{out: &t.b.Lines})
	case typ == "MESSAGE" && sub == "RFC822":
		t.b.Envelope = &Envelope{}
		t.b.Child = &BodyStructure{}
		// Pushed bottom-to-top so execution order is envelope, then
		// nested body structure, then lines.
		p.push(&numberTask{out: &t.b.Lines})
		p.push(newBodyStructureTask(t.b.Child))
		p.push(newEnvelopeTask(t.b.Envelope))
	}
	return false, nil
}

// skipExtensionTailTask consumes zero or more SP-separated values
// through the ')' that closes the enclosing body or body-mpart.
type skipExtensionTailTask struct{}

func (t *skipExtensionTailTask) step(p *FetchParser) (bool, error) {
	scanSkipSpace(p.buf)
	c, ok := p.buf.peekAt(0)
	if !ok {
		return false, ErrIncomplete
	}
	if c == rightParen {
		p.buf.advance(1)
		return true, nil
	}
	p.push(&skipValueTask{})
	return false, nil
}

// skipValueTask discards exactly one value: an atom, a quoted string,
// a literal (inline or draining chunk-wise, never buffered in full),
// or a balanced parenthesized group. Used for extension data whose
// shape the parser does not model.
type skipValueTask struct {
	phase int // 0 dispatch, 1 quoted, 2 literal header, 3 literal body, 4 awaiting group
	lit   *litState
}

func (t *skipValueTask) step(p *FetchParser) (bool, error) {
	switch t.phase {
	case 0:
		scanSkipSpace(p.buf)
		c, ok := p.buf.peekAt(0)
		if !ok {
			return false, ErrIncomplete
		}
		switch c {
		case leftParen:
			p.buf.advance(1)
			t.phase = 4
			p.push(&skipGroupTask{})
			return false, nil
		case doubleQuote:
			p.buf.advance(1)
			t.phase = 1
			return false, nil
		case leftCurly:
			t.phase = 2
			return false, nil
		default:
			_, outcome := scanAtom(p.buf)
			switch outcome {
			case scanMore:
				return false, ErrIncomplete
			case scanBad:
				return false, &UnexpectedTokenError{Expected: "value", Got: string(c)}
			}
			return true, nil
		}
	case 1:
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
				p.buf.advance(2)
			case doubleQuote:
				p.buf.advance(1)
				return true, nil
			case cr, lf:
				return false, &UnexpectedTokenError{Expected: "closing quote", Got: "CRLF"}
			default:
				p.buf.advance(1)
			}
		}
	case 2:
		n, headerLen, outcome := tryParseLiteralHeader(p.buf)
		switch outcome {
		case scanMore:
			return false, ErrIncomplete
		case scanBad:
			return false, ErrBadLiteralSyntax
		}
		p.buf.advance(headerLen)
		t.lit = &litState{remaining: int(n)}
		if t.lit.remaining == 0 {
			return true, nil
		}
		t.phase = 3
		return false, nil
	case 3:
		avail := p.buf.remaining()
		if avail == 0 {
			return false, ErrIncomplete
		}
		take := avail
		if take > t.lit.remaining {
			take = t.lit.remaining
		}
		p.buf.advance(take)
		t.lit.remaining -= take
		if t.lit.remaining == 0 {
			return true, nil
		}
		return false, ErrIncomplete
	case 4:
		return true, nil
	}
	panic("imapc: skipValueTask in unknown phase")
}

// skipGroupTask discards a balanced "(" ... ")" group whose opening
// paren was already consumed by the caller.
type skipGroupTask struct{}

func (t *skipGroupTask) step(p *FetchParser) (bool, error) {
	scanSkipSpace(p.buf)
	c, ok := p.buf.peekAt(0)
	if !ok {
		return false, ErrIncomplete
	}
	if c == rightParen {
		p.buf.advance(1)
		return true, nil
	}
	p.push(&skipValueTask{})
	return false, nil
}
