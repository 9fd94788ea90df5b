package protocol

import (
	"crypto/rand"
	"encoding/hex"
)

// PeerIDLength is the length of a peer identifier: 8 random bytes, hex
// encoded, always lowercase.
const PeerIDLength = 16

// Session token bounds. Tokens are opaque, client-generated values; only the
// shape is checked.
const (
	sessionTokenMinLen = 8
	sessionTokenMaxLen = 128
)

// Room code bounds for the glyph grammar (rune count) and the plain grammar
// (byte count).
const (
	glyphRoomIDMinRunes = 4
	glyphRoomIDMaxRunes = 10
	plainRoomIDMinLen   = 4
	plainRoomIDMaxLen   = 32
)

// roomGlyphs is the alphabet for glyph room codes, chosen so codes can be
// shared as a short string of colored shapes.
var roomGlyphs = map[rune]struct{}{
	'🔴': {}, '🟠': {}, '🟡': {}, '🟢': {}, '🔵': {}, '🟣': {}, '🟤': {}, '⚫': {}, '⚪': {},
}

// NewPeerID mints a fresh peer identifier.
func NewPeerID() (string, error) {
	var buf [PeerIDLength / 2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// ValidPeerID reports whether s has the exact shape of a minted peer
// identifier.
func ValidPeerID(s string) bool {
	if len(s) != PeerIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isLowerHex(s[i]) {
			return false
		}
	}
	return true
}

// ValidSessionToken reports whether s is an acceptable session token:
// 8-128 characters of [A-Za-z0-9_-].
func ValidSessionToken(s string) bool {
	if len(s) < sessionTokenMinLen || len(s) > sessionTokenMaxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

// ValidRoomID reports whether s matches either accepted room grammar:
// 4-10 runes drawn from the glyph alphabet, or 4-32 characters of
// [A-Za-z0-9_-].
func ValidRoomID(s string) bool {
	return validPlainRoomID(s) || validGlyphRoomID(s)
}

func validPlainRoomID(s string) bool {
	if len(s) < plainRoomIDMinLen || len(s) > plainRoomIDMaxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

func validGlyphRoomID(s string) bool {
	runes := 0
	for _, r := range s {
		if _, ok := roomGlyphs[r]; !ok {
			return false
		}
		runes++
		if runes > glyphRoomIDMaxRunes {
			return false
		}
	}
	return runes >= glyphRoomIDMinRunes
}

func isLowerHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}
