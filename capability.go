package imapc

import "strings"

// Capabilities is the set of capability strings the server advertised,
// either in the initial greeting's response code or in a CAPABILITY
// response. Lookups are case-insensitive per RFC 3501 §2.2.2.
type Capabilities map[string]bool

// ParseCapabilities splits a "CAPABILITY " response's text (everything
// after the keyword) into a Capabilities set. Grounded on
// cmd_capability.go's capability string assembly, inverted from
// writing to reading.
func ParseCapabilities(text string) Capabilities {
	caps := make(Capabilities)
	for _, tok := range strings.Fields(text) {
		caps[strings.ToUpper(tok)] = true
	}
	return caps
}

// Has reports whether the set advertises name (case-insensitive).
func (c Capabilities) Has(name string) bool {
	return c[strings.ToUpper(name)]
}

// SupportsIMAP4rev1 reports whether the set includes IMAP4rev1. The
// engine checks it on every capability list it receives and fails the
// session with ErrNotImap4Rev1 when it is false.
func (c Capabilities) SupportsIMAP4rev1() bool {
	return c.Has("IMAP4REV1")
}

// AuthMechanisms returns the "AUTH=xxx" mechanism names advertised,
// with the "AUTH=" prefix stripped.
func (c Capabilities) AuthMechanisms() []string {
	var out []string
	for name := range c {
		if strings.HasPrefix(name, "AUTH=") {
			out = append(out, strings.TrimPrefix(name, "AUTH="))
		}
	}
	return out
}
