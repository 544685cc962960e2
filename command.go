package imapc

import (
	"fmt"
	"strconv"
	"strings"
)

// Arg is one encoded argument of an outgoing command. Most arguments
// are plain text (Text); an argument built with a non-nil Literal
// instead carries raw bytes that must be sent as an IMAP literal,
// since the string either contains bytes illegal in a quoted string
// (CR, LF) or is large enough that quoting it would be wasteful.
type Arg struct {
	Text    string
	Literal []byte
}

// Atom encodes s verbatim, unquoted — for keywords, flags, numbers and
// sequence sets already in wire form.
func Atom(s string) Arg { return Arg{Text: s} }

// Number encodes an unsigned integer.
func Number(n uint64) Arg { return Arg{Text: strconv.FormatUint(n, 10)} }

// ParenList encodes a parenthesized, space-separated list of already
// encoded tokens, e.g. ParenList("\\Seen", "\\Deleted").
func ParenList(items ...string) Arg {
	return Arg{Text: "(" + strings.Join(items, " ") + ")"}
}

// QuotedString encodes s as an IMAP quoted string, escaping '\\' and
// '"'.
func QuotedString(s string) Arg {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return Arg{Text: b.String()}
}

// AString encodes s as an IMAP astring: as a bare atom when every byte
// is atom-safe, as a quoted string when it contains a space or other
// atom-special but no control bytes, or as a literal when it contains
// CR/LF (mailbox names and passwords may legitimately need this).
func AString(s string) Arg {
	if s == "" {
		return QuotedString(s)
	}
	safeAtom := true
	needsLiteral := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == cr || c == lf {
			needsLiteral = true
			safeAtom = false
			break
		}
		if !isAtomChar(c) {
			safeAtom = false
		}
	}
	switch {
	case needsLiteral:
		return Arg{Literal: []byte(s)}
	case safeAtom:
		return Atom(s)
	default:
		return QuotedString(s)
	}
}

// Command is one outgoing client command, not yet serialized. Verb and
// Args follow RFC 3501 §6/§9's command grammar. Grounded on the
// teacher's per-command constructors (createFetch, createSelect, ...)
// and execute()-per-command-type shape, generalized from
// server-side-received commands into client-side-sent ones: instead of
// a command type per verb with an execute(*session) method, a single
// Command plus a Verb string, since the client only ever serializes a
// command — it never interprets one.
type Command struct {
	Tag  string
	Verb string
	Args []Arg
}

// Segment is one chunk of bytes the dispatcher writes out for a
// Command. A literal argument produces two segments: the text up to
// and including its "{N}" (or "{N+}") header, and the raw literal
// bytes themselves; a synchronizing literal's byte segment is not
// released by Dispatcher.Drain until the server's "+" continuation
// arrives.
type Segment struct {
	Data          []byte
	IsLiteral     bool
	Synchronizing bool
}

// Segments serializes the command, using non-synchronizing literals
// ("{N+}") when literalPlus is true (LITERAL+ advertised) to avoid the
// continuation round trip.
func (c *Command) Segments(literalPlus bool) []Segment {
	var segs []Segment
	var cur strings.Builder
	cur.WriteString(c.Tag)
	cur.WriteByte(' ')
	cur.WriteString(c.Verb)

	for _, a := range c.Args {
		cur.WriteByte(' ')
		if a.Literal == nil {
			cur.WriteString(a.Text)
			continue
		}
		sync := !literalPlus
		plus := "+"
		if sync {
			plus = ""
		}
		fmt.Fprintf(&cur, "{%d%s}\r\n", len(a.Literal), plus)
		segs = append(segs, Segment{Data: []byte(cur.String())})
		cur.Reset()
		segs = append(segs, Segment{Data: a.Literal, IsLiteral: true, Synchronizing: sync})
	}
	cur.WriteString("\r\n")
	segs = append(segs, Segment{Data: []byte(cur.String())})
	return segs
}
