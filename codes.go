package main

import (
	"crypto/rand"
	"strings"
	"unicode"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
	maxNameLen   = 20
)

// randIndex returns a uniform int in [0, n) from crypto/rand. Bytes at or
// above the largest multiple of n are resampled so the modulo stays
// unbiased. Requires 0 < n <= 256.
func randIndex(n int) int {
	limit := 256 - 256%n
	var b [1]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		if int(b[0]) < limit {
			return int(b[0]) % n
		}
	}
}

// newRoomCode generates a crypto-random room code and ensures it doesn't
// collide with any currently-live room.
func (s *RoomStore) newRoomCode() string {
	for {
		out := make([]byte, codeLength)
		for i := range out {
			out[i] = codeAlphabet[randIndex(len(codeAlphabet))]
		}
		code := string(out)

		s.mu.RLock()
		_, exists := s.rooms[code]
		s.mu.RUnlock()

		if !exists {
			return code
		}
	}
}

// Room codes are case-insensitive; all lookups and creation normalize first.
func normalizeCode(code string) string {
	return strings.ToUpper(code)
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

func validPlayerName(name string) bool {
	return isAlphanumeric(name) && len(name) <= maxNameLen
}

// validEntryText strips whitespace and requires the remainder to be
// non-empty and alphanumeric.
func validEntryText(entry string) bool {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, entry)

	return isAlphanumeric(stripped)
}
