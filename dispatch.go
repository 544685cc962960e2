package imapc

// pendingCommand tracks one command from the moment it is enqueued
// until its tagged response arrives (or the connection aborts).
type pendingCommand struct {
	tag                 string
	onComplete          func(status, text string, err error)
	segments            []Segment
	segIdx              int
	continuationGranted bool
}

// Dispatcher owns command tag generation, the outbound write queue,
// and the pending-tag table a client must keep to correlate a later
// tagged response with the command that triggered it. Grounded on the
// teacher's command interface and per-command create* constructors,
// generalized from server-side-received commands to client-side-sent
// commands: the teacher dispatches an already-tagged command to
// execute(); this dispatcher instead issues the tag and remembers the
// caller's completion callback until that tag comes back around.
type Dispatcher struct {
	tags        *TagGenerator
	pending     map[string]*pendingCommand
	writeQueue  []*pendingCommand
	literalPlus bool

	idleTag string
}

// NewDispatcher creates a Dispatcher with a fresh tag generator.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{tags: NewTagGenerator(""), pending: make(map[string]*pendingCommand)}
}

// SetLiteralPlus switches literal encoding to the non-synchronizing
// form once the server has advertised LITERAL+ or LITERAL-.
func (d *Dispatcher) SetLiteralPlus(v bool) { d.literalPlus = v }

// Idling reports whether an IDLE command is currently outstanding —
// while true, the caller must not enqueue further commands (RFC 3501
// §6.3.9 forbids pipelining past IDLE).
func (d *Dispatcher) Idling() bool { return d.idleTag != "" }

// Enqueue serializes verb/args under a freshly generated tag, queues
// it for writing, and records onComplete to be invoked once the
// matching tagged response arrives. It returns the assigned tag.
func (d *Dispatcher) Enqueue(verb string, args []Arg, onComplete func(status, text string, err error)) string {
	tag := d.tags.Next()
	cmd := &Command{Tag: tag, Verb: verb, Args: args}
	pc := &pendingCommand{tag: tag, onComplete: onComplete, segments: cmd.Segments(d.literalPlus)}
	d.pending[tag] = pc
	d.writeQueue = append(d.writeQueue, pc)
	return tag
}

// Drain returns the next chunk of bytes the caller should write to the
// transport. ok is false when there is nothing to send right now —
// either the queue is empty, or the command at the front of the queue
// is paused on a synchronizing literal awaiting the server's "+"
// (call ContinuationReceived once it arrives).
func (d *Dispatcher) Drain() (data []byte, ok bool) {
	for len(d.writeQueue) > 0 {
		pc := d.writeQueue[0]
		if pc.segIdx >= len(pc.segments) {
			d.writeQueue = d.writeQueue[1:]
			continue
		}
		seg := pc.segments[pc.segIdx]
		if seg.IsLiteral && seg.Synchronizing && !pc.continuationGranted {
			return nil, false
		}
		pc.segIdx++
		if seg.IsLiteral {
			pc.continuationGranted = false
		}
		return seg.Data, true
	}
	return nil, false
}

// ContinuationReceived unblocks the front-of-queue command's pending
// synchronizing literal after the engine observes a "+" continuation.
func (d *Dispatcher) ContinuationReceived() {
	if len(d.writeQueue) == 0 {
		return
	}
	d.writeQueue[0].continuationGranted = true
}

// Complete resolves the pending command for tag with the tagged
// response's status and text, invoking its completion callback. It
// returns ErrUnexpectedTag if no command with that tag is pending.
func (d *Dispatcher) Complete(tag, status, text string) error {
	pc, ok := d.pending[tag]
	if !ok {
		return ErrUnexpectedTag
	}
	delete(d.pending, tag)
	if tag == d.idleTag {
		d.idleTag = ""
	}
	if pc.onComplete == nil {
		return nil
	}
	switch status {
	case "OK":
		pc.onComplete(status, text, nil)
	case "NO":
		pc.onComplete(status, text, &ServerError{Tag: tag, Kind: "NO", Text: text})
	case "BAD":
		pc.onComplete(status, text, &ServerError{Tag: tag, Kind: "BAD", Text: text})
	default:
		pc.onComplete(status, text, &UnexpectedTokenError{Expected: "OK/NO/BAD", Got: status})
	}
	return nil
}

// Abort fails every still-pending command with err — the engine calls
// it with ErrConnectionLost when an unexpected BYE moves the
// connection to Logout.
func (d *Dispatcher) Abort(err error) {
	for tag, pc := range d.pending {
		if pc.onComplete != nil {
			pc.onComplete("", "", err)
		}
		delete(d.pending, tag)
	}
	d.writeQueue = nil
	d.idleTag = ""
}
