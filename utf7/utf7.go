// Package utf7 implements the modified UTF-7 mailbox-name encoding
// required by RFC 3501 §5.1.3. It is modified in two ways from
// RFC 2152 UTF-7: '&' rather than '+' introduces a shifted sequence,
// and the shifted run is encoded as UTF-16BE rather than UTF-7's own
// packing, both base64-encoded with '/' replaced by ','.
//
// No file in the retrieval pack implements this codec directly, so the
// shape is grounded on the x/text extension pattern instead: an
// encoding.Encoding backed by a pair of transform.Transformers, the
// same structure golang.org/x/text/encoding/japanese and similar
// subpackages use. The dependency itself is the x/text module already
// pulled in by lorduskordus-aerion's go.mod.
package utf7

import (
	"errors"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// Encoding is the modified UTF-7 encoding.Encoding. Use Encoding.NewEncoder()
// to get a transform.Transformer from UTF-8 to modified UTF-7 (for
// sending a mailbox name on the wire), and Encoding.NewDecoder() for the
// reverse (for displaying a mailbox name the server sent).
var Encoding encoding.Encoding = &imapUTF7{}

const (
	shiftOut = '&'
	shiftIn  = '-'
)

// base64Alphabet is RFC 2045 base64 with '/' replaced by ',' and no
// padding, per RFC 3501 §5.1.3.
const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+,"

var base64DecodeMap [256]int8

func init() {
	for i := range base64DecodeMap {
		base64DecodeMap[i] = -1
	}
	for i, c := range base64Alphabet {
		base64DecodeMap[c] = int8(i)
	}
}

type imapUTF7 struct{}

func (imapUTF7) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: &encoder{}}
}

func (imapUTF7) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: &decoder{}}
}

// Encode converts a UTF-8 mailbox name to wire-form modified UTF-7.
func Encode(s string) (string, error) {
	dst, _, err := transform.String(Encoding.NewEncoder(), s)
	return dst, err
}

// Decode converts a wire-form modified UTF-7 mailbox name to UTF-8.
func Decode(s string) (string, error) {
	dst, _, err := transform.String(Encoding.NewDecoder(), s)
	return dst, err
}

// encoder is a transform.Transformer from UTF-8 to modified UTF-7.
type encoder struct {
	shifted  bool
	bitBuf   uint32
	bitCount uint
}

func (e *encoder) Reset() { *e = encoder{} }

func (e *encoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size <= 1 {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			return nDst, nSrc, errors.New("utf7: invalid UTF-8")
		}

		if isDirectRune(r) {
			if e.shifted {
				n, ok := e.flush(dst[nDst:])
				if !ok {
					return nDst, nSrc, transform.ErrShortDst
				}
				nDst += n
				e.shifted = false
			}
			if r == shiftOut {
				if nDst >= len(dst) {
					return nDst, nSrc, transform.ErrShortDst
				}
				dst[nDst] = shiftOut
				nDst++
				if nDst >= len(dst) {
					return nDst, nSrc, transform.ErrShortDst
				}
				dst[nDst] = shiftIn
				nDst++
			} else {
				if nDst >= len(dst) {
					return nDst, nSrc, transform.ErrShortDst
				}
				dst[nDst] = byte(r)
				nDst++
			}
			nSrc += size
			continue
		}

		if !e.shifted {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = shiftOut
			nDst++
			e.shifted = true
			e.bitBuf = 0
			e.bitCount = 0
		}

		for _, u16 := range utf16.Encode([]rune{r}) {
			e.bitBuf = (e.bitBuf << 16) | uint32(u16)
			e.bitCount += 16
			for e.bitCount >= 6 {
				e.bitCount -= 6
				idx := (e.bitBuf >> e.bitCount) & 0x3f
				if nDst >= len(dst) {
					return nDst, nSrc, transform.ErrShortDst
				}
				dst[nDst] = base64Alphabet[idx]
				nDst++
			}
			// Drop bits already emitted so the next rune's 16 bits don't
			// collide with stale high bits once shifted into a uint32.
			e.bitBuf &= (1 << e.bitCount) - 1
		}
		nSrc += size
	}

	if atEOF && e.shifted {
		n, ok := e.flush(dst[nDst:])
		if !ok {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += n
		e.shifted = false
	}
	return nDst, nSrc, nil
}

// flush closes an open shifted run: pads the final base64 group with
// zero bits if needed and writes the terminating '-'.
func (e *encoder) flush(dst []byte) (int, bool) {
	n := 0
	if e.bitCount > 0 {
		idx := (e.bitBuf << (6 - e.bitCount)) & 0x3f
		if n >= len(dst) {
			return 0, false
		}
		dst[n] = base64Alphabet[idx]
		n++
		e.bitCount = 0
	}
	if n >= len(dst) {
		return 0, false
	}
	dst[n] = shiftIn
	n++
	return n, true
}

// isDirectRune reports whether r stays outside a shifted run: the
// printable US-ASCII range. That range includes '&', the shift
// character, which the encoder writes as "&-".
func isDirectRune(r rune) bool {
	return r == shiftOut || (r >= 0x20 && r < 0x7f)
}

// decoder is a transform.Transformer from modified UTF-7 to UTF-8.
type decoder struct {
	shifted  bool
	bitBuf   uint32
	bitCount uint
	pending  []uint16 // accumulated UTF-16 code units awaiting a surrogate pair
	first    bool     // true immediately after '&', before any base64 byte
}

func (d *decoder) Reset() { *d = decoder{} }

func (d *decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]

		if !d.shifted {
			if c != shiftOut {
				if nDst >= len(dst) {
					return nDst, nSrc, transform.ErrShortDst
				}
				dst[nDst] = c
				nDst++
				nSrc++
				continue
			}
			d.shifted = true
			d.first = true
			d.bitBuf = 0
			d.bitCount = 0
			nSrc++
			continue
		}

		if d.first && c == shiftIn {
			if nDst >= len(dst) {
				return nDst, nSrc, transform.ErrShortDst
			}
			dst[nDst] = shiftOut
			nDst++
			nSrc++
			d.shifted = false
			continue
		}
		d.first = false

		if c == shiftIn {
			nSrc++
			d.shifted = false
			d.bitBuf = 0
			d.bitCount = 0
			continue
		}

		v := base64DecodeMap[c]
		if v < 0 {
			return nDst, nSrc, errors.New("utf7: invalid base64 byte in shifted run")
		}
		d.bitBuf = (d.bitBuf << 6) | uint32(v)
		d.bitCount += 6
		nSrc++

		if d.bitCount >= 16 {
			d.bitCount -= 16
			u16 := uint16(d.bitBuf >> d.bitCount)
			d.bitBuf &= (1 << d.bitCount) - 1
			n, ok := d.emit(dst[nDst:], u16)
			if !ok {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += n
		}
	}
	return nDst, nSrc, nil
}

// emit appends one decoded UTF-16 code unit to dst, combining it with a
// pending high surrogate if necessary.
func (d *decoder) emit(dst []byte, u16 uint16) (int, bool) {
	if len(d.pending) == 0 && utf16.IsSurrogate(rune(u16)) {
		d.pending = append(d.pending, u16)
		return 0, true
	}
	var r rune
	if len(d.pending) == 1 {
		r = utf16.DecodeRune(rune(d.pending[0]), rune(u16))
	} else {
		r = rune(u16)
	}
	if len(dst) < utf8.UTFMax {
		return 0, false
	}
	d.pending = d.pending[:0]
	n := utf8.EncodeRune(dst, r)
	return n, true
}
