package imapc

import "strings"

// MailboxStatus accumulates the mailbox state conveyed by the
// untagged responses that follow a SELECT/EXAMINE, and by subsequent
// unsolicited updates in the Selected state. Grounded on session.go's
// addMailboxInfo (EXISTS/RECENT/UNSEEN/UIDNEXT/UIDVALIDITY fields),
// inverted from response-writing to response-reading.
type MailboxStatus struct {
	Name           string
	Flags          []string
	PermanentFlags []string
	Exists         uint32
	Recent         uint32
	Unseen         uint32
	UIDNext        uint64
	UIDValidity    uint64
	ReadWrite      bool
}

// ResponseCode is a bracketed response code such as
// "[UIDVALIDITY 3857529045]" or "[READ-WRITE]".
type ResponseCode struct {
	Name string
	Args []string
}

// ParseResponseCode extracts a leading "[NAME ...]" response code from
// text, returning it (nil if absent) and the remaining text.
func ParseResponseCode(text string) (*ResponseCode, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") {
		return nil, text
	}
	end := strings.IndexByte(text, ']')
	if end < 0 {
		return nil, text
	}
	inner := text[1:end]
	rest := strings.TrimSpace(text[end+1:])
	fields := strings.Fields(inner)
	if len(fields) == 0 {
		return nil, rest
	}
	return &ResponseCode{Name: strings.ToUpper(fields[0]), Args: fields[1:]}, rest
}

// ApplyUntagged folds one routed untagged response into status. It
// recognises EXISTS/RECENT/FLAGS and the OK response codes a
// SELECT/EXAMINE or idle mailbox update carries; anything else is
// ignored, including EXPUNGE (Exists is not decremented) and FETCH.
func ApplyUntagged(status *MailboxStatus, resp *RoutedResponse) {
	switch resp.Kind {
	case RespCount:
		switch resp.CountKind {
		case "EXISTS":
			status.Exists = uint32(resp.SeqNum)
		case "RECENT":
			status.Recent = uint32(resp.SeqNum)
		}
		return
	case RespUntagged:
	default:
		return
	}

	switch resp.Keyword {
	case "FLAGS":
		status.Flags = parseFlagsParenList(resp.Text)
	case "OK":
		code, _ := ParseResponseCode(resp.Text)
		if code == nil {
			return
		}
		switch code.Name {
		case "UIDVALIDITY":
			if len(code.Args) == 1 {
				status.UIDValidity = parseUintOrZero(code.Args[0])
			}
		case "UIDNEXT":
			if len(code.Args) == 1 {
				status.UIDNext = parseUintOrZero(code.Args[0])
			}
		case "UNSEEN":
			if len(code.Args) == 1 {
				status.Unseen = uint32(parseUintOrZero(code.Args[0]))
			}
		case "PERMANENTFLAGS":
			status.PermanentFlags = parseFlagsParenList(strings.Join(code.Args, " "))
		case "READ-WRITE":
			status.ReadWrite = true
		case "READ-ONLY":
			status.ReadWrite = false
		}
	}
}

func parseFlagsParenList(text string) []string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "(")
	text = strings.TrimSuffix(text, ")")
	if text == "" {
		return nil
	}
	return strings.Fields(text)
}

func parseUintOrZero(s string) uint64 {
	var n uint64
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + uint64(c-'0')
	}
	return n
}
