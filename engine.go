package imapc

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/alienscience/goimapc/utf7"
)

// FetchCallback receives one decoded FETCH response as it completes.
type FetchCallback func(*FetchItem)

// SinkResolver lets a caller decide, per in-flight FETCH response,
// whether a given section key should stream to a callback instead of
// being buffered. Returning ok == false falls back to inline buffering
// (subject to the configured literal ceiling).
type SinkResolver func(seq int32, sectionKey string) (sink func(chunk []byte, last bool), ok bool)

// Engine is the sans-I/O IMAP4rev1 client protocol engine: it owns no
// socket. The caller feeds inbound bytes via Feed, drains outbound
// bytes via Outbound, and issues commands via the methods below; the
// actual connect/read/write/TLS-upgrade loop is an external
// transport's responsibility (see demo/client for one such transport).
// No single teacher file corresponds to this separation, since the
// teacher's session.go owns its socket directly; a sans-I/O engine
// needs this seam the teacher's architecture never had to grow.
type Engine struct {
	state      ConnectionState
	buf        *buffer
	router     *Router
	dispatcher *Dispatcher
	caps       Capabilities
	mailbox    MailboxStatus
	log        zerolog.Logger

	literalCeiling int
	sinkResolver   SinkResolver

	inFlightFetch      *FetchParser
	inFlightSeq        int32
	resyncAfterFailure bool

	activeListKind string
	activeListings []MailboxListing

	onFetch         FetchCallback
	onExpunge       func(seq int32)
	onMailboxUpdate func(MailboxStatus)
	onBye           func(text string)
}

// EngineOption configures a new Engine.
type EngineOption func(*Engine)

// WithLogger overrides the default component logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithLiteralCeiling overrides the inline-buffering threshold applied
// to every FETCH response this engine parses.
func WithLiteralCeiling(n int) EngineOption {
	return func(e *Engine) { e.literalCeiling = n }
}

// NewEngine creates an Engine in ConnectionEstablished state, ready to
// Feed the server's greeting.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		state:      ConnectionEstablished,
		buf:        newBuffer(),
		router:     NewRouter(),
		dispatcher: NewDispatcher(),
		log:        componentLogger("imapc.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current connection state.
func (e *Engine) State() ConnectionState { return e.state }

// Capabilities returns the most recently observed capability set.
func (e *Engine) Capabilities() Capabilities { return e.caps }

// Mailbox returns the accumulated status of the currently selected
// mailbox (zero value if none is selected).
func (e *Engine) Mailbox() MailboxStatus { return e.mailbox }

// OnFetch registers the callback invoked for every decoded FETCH
// response.
func (e *Engine) OnFetch(cb FetchCallback) { e.onFetch = cb }

// OnExpunge registers the callback invoked for every EXPUNGE.
func (e *Engine) OnExpunge(cb func(seq int32)) { e.onExpunge = cb }

// OnMailboxUpdate registers the callback invoked whenever mailbox
// status changes (EXISTS/RECENT/FLAGS/response codes).
func (e *Engine) OnMailboxUpdate(cb func(MailboxStatus)) { e.onMailboxUpdate = cb }

// OnBye registers the callback invoked on an unsolicited BYE.
func (e *Engine) OnBye(cb func(text string)) { e.onBye = cb }

// SetSinkResolver installs the resolver consulted for every FETCH
// response's section literals.
func (e *Engine) SetSinkResolver(r SinkResolver) { e.sinkResolver = r }

// Outbound returns the next chunk of bytes the transport should write,
// or ok == false if nothing is ready (including "paused on a
// continuation" — see Dispatcher.Drain).
func (e *Engine) Outbound() (data []byte, ok bool) { return e.dispatcher.Drain() }

// Feed appends newly received bytes and processes every complete
// response they make available. It returns nil when it has consumed
// everything it can and is waiting for more bytes (ErrNeedMore /
// ErrIncomplete are not surfaced to the caller — they just mean "call
// Feed again once more bytes arrive"); any other error means the
// connection is no longer trustworthy and should be closed.
func (e *Engine) Feed(data []byte) error {
	e.buf.append(data)
	for {
		if e.resyncAfterFailure {
			if !e.buf.skipToLineEnd() {
				e.buf.compact()
				return nil
			}
			e.resyncAfterFailure = false
			continue
		}
		if e.inFlightFetch != nil {
			item, err := e.inFlightFetch.Parse(e.inFlightSeq)
			if err == ErrIncomplete {
				e.buf.compact()
				return nil
			}
			if err != nil {
				e.log.Error().Err(err).Int32("seq", e.inFlightSeq).Msg("fetch response failed")
				e.inFlightFetch = nil
				e.resyncAfterFailure = true
				continue
			}
			e.inFlightFetch = nil
			if e.onFetch != nil {
				e.onFetch(item)
			}
			continue
		}

		resp, err := e.router.Next(e.buf)
		if err == ErrNeedMore {
			e.buf.compact()
			return nil
		}
		if err != nil {
			return err
		}
		if err := e.handle(resp); err != nil {
			return err
		}
	}
}

func (e *Engine) handle(resp *RoutedResponse) error {
	switch resp.Kind {
	case RespContinuation:
		e.dispatcher.ContinuationReceived()

	case RespTagged:
		return e.dispatcher.Complete(resp.Tag, resp.Status, resp.Text)

	case RespFetchStart:
		fp := resp.FetchParser
		fp.SetLiteralCeiling(e.literalCeiling)
		seq := resp.SeqNum
		fp.SetSinkResolver(func(key string) (func([]byte, bool), bool) {
			if e.sinkResolver == nil {
				return nil, false
			}
			return e.sinkResolver(seq, key)
		})
		e.inFlightFetch = fp
		e.inFlightSeq = seq

	case RespCount:
		ApplyUntagged(&e.mailbox, resp)
		if resp.CountKind == "EXPUNGE" && e.onExpunge != nil {
			e.onExpunge(resp.SeqNum)
		}
		if e.onMailboxUpdate != nil {
			e.onMailboxUpdate(e.mailbox)
		}

	case RespUntagged:
		switch resp.Keyword {
		case "LIST", "LSUB":
			if resp.Keyword == e.activeListKind {
				e.activeListings = append(e.activeListings, parseMailboxListing(resp.Text))
				return nil
			}
		case "CAPABILITY":
			e.caps = ParseCapabilities(resp.Text)
			if !e.caps.SupportsIMAP4rev1() {
				return ErrNotImap4Rev1
			}
		case "OK":
			if e.state == ConnectionEstablished {
				e.state = NotAuthenticated
			}
			if code, _ := ParseResponseCode(resp.Text); code != nil && code.Name == "CAPABILITY" {
				e.caps = ParseCapabilities(strJoinArgs(code.Args))
				if !e.caps.SupportsIMAP4rev1() {
					return ErrNotImap4Rev1
				}
			}
		case "BYE":
			if e.onBye != nil {
				e.onBye(resp.Text)
			}
			if e.state != Logout {
				e.state = Logout
				e.dispatcher.Abort(ErrConnectionLost)
				return ErrUnexpectedBye
			}
		}
		ApplyUntagged(&e.mailbox, resp)
		if e.onMailboxUpdate != nil {
			e.onMailboxUpdate(e.mailbox)
		}
	}
	return nil
}

func strJoinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// Capability sends CAPABILITY.
func (e *Engine) Capability(cb func(Capabilities, error)) error {
	if !legalIn("CAPABILITY", e.state) {
		return ErrUnexpectedState
	}
	e.dispatcher.Enqueue("CAPABILITY", nil, func(status, text string, err error) {
		if cb != nil {
			cb(e.caps, err)
		}
	})
	return nil
}

// StartTLS sends STARTTLS. On success the caller must perform the
// actual TLS handshake itself (the sans-I/O core has no socket to
// upgrade) and then call Reset to discard any buffered plaintext and
// re-enter NotAuthenticated, since capabilities must be re-queried
// over the encrypted channel per RFC 3501 §6.2.1.
func (e *Engine) StartTLS(cb func(error)) error {
	if !legalIn("STARTTLS", e.state) {
		return ErrUnexpectedState
	}
	e.dispatcher.Enqueue("STARTTLS", nil, func(status, text string, err error) {
		if cb != nil {
			cb(err)
		}
	})
	return nil
}

// Reset discards any buffered plaintext bytes and returns the engine
// to NotAuthenticated. Call this immediately after completing a TLS
// handshake triggered by StartTLS, before feeding the first encrypted
// byte.
func (e *Engine) Reset() {
	e.buf = newBuffer()
	e.state = NotAuthenticated
	e.caps = nil
}

// Login sends LOGIN, moving to Authenticated on success.
func (e *Engine) Login(user, pass string, cb func(error)) error {
	if !legalIn("LOGIN", e.state) {
		return ErrUnexpectedState
	}
	e.dispatcher.Enqueue("LOGIN", []Arg{AString(user), AString(pass)}, func(status, text string, err error) {
		if err == nil {
			e.state = Authenticated
		}
		if cb != nil {
			cb(err)
		}
	})
	return nil
}

// Logout sends LOGOUT, moving to Logout immediately (a client must
// not issue further commands even before the tagged OK arrives).
func (e *Engine) Logout(cb func(error)) error {
	if !legalIn("LOGOUT", e.state) {
		return ErrUnexpectedState
	}
	e.state = Logout
	e.dispatcher.Enqueue("LOGOUT", nil, func(status, text string, err error) {
		if cb != nil {
			cb(err)
		}
	})
	return nil
}

// Noop sends NOOP, a no-op that still lets any pending untagged
// updates be delivered.
func (e *Engine) Noop(cb func(error)) error {
	if !legalIn("NOOP", e.state) {
		return ErrUnexpectedState
	}
	e.dispatcher.Enqueue("NOOP", nil, func(status, text string, err error) {
		if cb != nil {
			cb(err)
		}
	})
	return nil
}

// Select sends SELECT, moving to Selected on success.
func (e *Engine) Select(mailbox string, cb func(MailboxStatus, error)) error {
	return e.selectOrExamine("SELECT", mailbox, cb)
}

// Examine sends EXAMINE (read-only SELECT).
func (e *Engine) Examine(mailbox string, cb func(MailboxStatus, error)) error {
	return e.selectOrExamine("EXAMINE", mailbox, cb)
}

func (e *Engine) selectOrExamine(verb, mailbox string, cb func(MailboxStatus, error)) error {
	if !legalIn(verb, e.state) {
		return ErrUnexpectedState
	}
	e.mailbox = MailboxStatus{Name: mailbox}
	e.dispatcher.Enqueue(verb, []Arg{AString(mailbox)}, func(status, text string, err error) {
		if err == nil {
			e.state = Selected
		}
		if cb != nil {
			cb(e.mailbox, err)
		}
	})
	return nil
}

// Fetch sends FETCH seqSet items (or UID FETCH when uid is true).
// items is the already-encoded attribute list, e.g.
// "(FLAGS ENVELOPE BODY[])" or "FAST".
func (e *Engine) Fetch(seqSet, items string, uid bool, cb func(error)) error {
	if !legalIn("FETCH", e.state) {
		return ErrUnexpectedState
	}
	verb, args := "FETCH", []Arg{Atom(seqSet), Atom(items)}
	if uid {
		verb, args = "UID", []Arg{Atom("FETCH"), Atom(seqSet), Atom(items)}
	}
	e.dispatcher.Enqueue(verb, args, func(status, text string, err error) {
		if cb != nil {
			cb(err)
		}
	})
	return nil
}

// Idle sends IDLE. The caller must call IdleSession.Done to end it
// before issuing any other command.
func (e *Engine) Idle(cb func(error)) (*IdleSession, error) {
	if !legalIn("IDLE", e.state) {
		return nil, ErrUnexpectedState
	}
	return e.dispatcher.StartIdle(func(status, text string, err error) {
		if cb != nil {
			cb(err)
		}
	})
}

// simpleMailbox sends verb with a single astring mailbox argument,
// the shape shared by CREATE, DELETE, CHECK (no argument), SUBSCRIBE
// and UNSUBSCRIBE.
func (e *Engine) simpleMailbox(verb, mailbox string, cb func(error)) error {
	if !legalIn(verb, e.state) {
		return ErrUnexpectedState
	}
	var args []Arg
	if mailbox != "" {
		args = []Arg{AString(mailbox)}
	}
	e.dispatcher.Enqueue(verb, args, func(status, text string, err error) {
		if cb != nil {
			cb(err)
		}
	})
	return nil
}

// Create sends CREATE, making a new mailbox.
func (e *Engine) Create(mailbox string, cb func(error)) error {
	return e.simpleMailbox("CREATE", mailbox, cb)
}

// Delete sends DELETE, removing a mailbox.
func (e *Engine) Delete(mailbox string, cb func(error)) error {
	return e.simpleMailbox("DELETE", mailbox, cb)
}

// Subscribe sends SUBSCRIBE.
func (e *Engine) Subscribe(mailbox string, cb func(error)) error {
	return e.simpleMailbox("SUBSCRIBE", mailbox, cb)
}

// Unsubscribe sends UNSUBSCRIBE.
func (e *Engine) Unsubscribe(mailbox string, cb func(error)) error {
	return e.simpleMailbox("UNSUBSCRIBE", mailbox, cb)
}

// Check sends CHECK, a request for a mailbox-internal checkpoint; it
// carries no argument and has no defined response other than OK.
func (e *Engine) Check(cb func(error)) error {
	return e.simpleMailbox("CHECK", "", cb)
}

// Close sends CLOSE, expunging deleted messages and deselecting the
// mailbox. The connection moves back to Authenticated once the tagged
// response arrives, whatever its status (RFC 3501 §6.4.2).
func (e *Engine) Close(cb func(error)) error {
	if !legalIn("CLOSE", e.state) {
		return ErrUnexpectedState
	}
	e.dispatcher.Enqueue("CLOSE", nil, func(status, text string, err error) {
		e.state = Authenticated
		e.mailbox = MailboxStatus{}
		if cb != nil {
			cb(err)
		}
	})
	return nil
}

// Rename sends RENAME oldname newname.
func (e *Engine) Rename(oldname, newname string, cb func(error)) error {
	if !legalIn("RENAME", e.state) {
		return ErrUnexpectedState
	}
	e.dispatcher.Enqueue("RENAME", []Arg{AString(oldname), AString(newname)}, func(status, text string, err error) {
		if cb != nil {
			cb(err)
		}
	})
	return nil
}

// MailboxListing is one "(flags) delimiter name" tuple returned by
// LIST or LSUB.
type MailboxListing struct {
	Flags     []string
	Delimiter string
	Name      string
}

// List sends LIST reference mailbox, collecting every listing line
// that arrives before the tagged response and handing the slice to cb.
func (e *Engine) List(reference, mailbox string, cb func([]MailboxListing, error)) error {
	return e.listOrLsub("LIST", reference, mailbox, cb)
}

// Lsub sends LSUB, listing subscribed mailboxes.
func (e *Engine) Lsub(reference, mailbox string, cb func([]MailboxListing, error)) error {
	return e.listOrLsub("LSUB", reference, mailbox, cb)
}

func (e *Engine) listOrLsub(verb, reference, mailbox string, cb func([]MailboxListing, error)) error {
	if !legalIn(verb, e.state) {
		return ErrUnexpectedState
	}
	e.activeListKind = verb
	e.activeListings = nil
	e.dispatcher.Enqueue(verb, []Arg{AString(reference), AString(mailbox)}, func(status, text string, err error) {
		listings := e.activeListings
		e.activeListKind = ""
		e.activeListings = nil
		if cb != nil {
			cb(listings, err)
		}
	})
	return nil
}

// parseMailboxListing decodes one LIST/LSUB response line's trailing
// text, `(\Flag1 \Flag2) "delim" "name"`, into a MailboxListing.
func parseMailboxListing(text string) MailboxListing {
	text = strings.TrimSpace(text)
	var l MailboxListing
	if strings.HasPrefix(text, "(") {
		if end := strings.IndexByte(text, ')'); end >= 0 {
			l.Flags = parseFlagsParenList(text[:end+1])
			text = strings.TrimSpace(text[end+1:])
		}
	}
	fields := splitQuotedFields(text)
	if len(fields) > 0 {
		l.Delimiter = fields[0]
	}
	if len(fields) > 1 {
		l.Name = decodeMailboxName(fields[1])
	}
	return l
}

// decodeMailboxName decodes a mailbox name off the wire from modified
// UTF-7 per §5.1.3. A name that fails to decode (a server advertising
// something other than modified UTF-7, or plain ASCII with a stray
// "&") is passed through unchanged rather than dropped.
func decodeMailboxName(wire string) string {
	decoded, err := utf7.Decode(wire)
	if err != nil {
		return wire
	}
	return decoded
}

// splitQuotedFields splits s on whitespace outside double quotes,
// stripping the quotes from each returned field.
func splitQuotedFields(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return fields
}

// Status sends STATUS mailbox (attribute list already encoded, e.g.
// "(MESSAGES UIDNEXT)"). The untagged STATUS response that carries the
// values is not decoded: the values are neither stored in the engine's
// MailboxStatus nor passed to cb, which receives only the command's
// completion error.
func (e *Engine) Status(mailbox, attrs string, cb func(error)) error {
	if !legalIn("STATUS", e.state) {
		return ErrUnexpectedState
	}
	e.dispatcher.Enqueue("STATUS", []Arg{AString(mailbox), Atom(attrs)}, func(status, text string, err error) {
		if cb != nil {
			cb(err)
		}
	})
	return nil
}
