package imapc

// IdleSession represents an outstanding IDLE command. While one is
// active the connection is otherwise unusable for new commands;
// unsolicited untagged responses (new mail, flag changes) keep
// arriving until Done is called, which sends "DONE" and lets the
// server's tagged completion for the original IDLE tag flow through
// normally. Grounded on lorduskordus-aerion/internal/imap/idle.go's
// Idle()/Close() shape, adapted from goroutine-driven (a background
// reader goroutine unblocked by closing a channel) to the
// single-threaded cooperative model this engine requires: Done just
// queues a line for the next Drain instead of signalling a goroutine.
type IdleSession struct {
	d      *Dispatcher
	tag    string
	active bool
}

// StartIdle enqueues IDLE and returns a session the caller uses to end
// it later. It fails with ErrUnexpectedState if an IDLE is already
// outstanding.
func (d *Dispatcher) StartIdle(onComplete func(status, text string, err error)) (*IdleSession, error) {
	if d.idleTag != "" {
		return nil, ErrUnexpectedState
	}
	tag := d.Enqueue("IDLE", nil, onComplete)
	d.idleTag = tag
	return &IdleSession{d: d, tag: tag, active: true}, nil
}

// Done sends "DONE", ending the IDLE. The IDLE command's completion
// callback still fires normally once the server's tagged OK arrives.
func (s *IdleSession) Done() {
	if !s.active {
		return
	}
	s.active = false
	s.d.writeQueue = append(s.d.writeQueue, &pendingCommand{
		segments: []Segment{{Data: []byte("DONE\r\n")}},
	})
}

// Active reports whether Done has not yet been called.
func (s *IdleSession) Active() bool { return s.active }
