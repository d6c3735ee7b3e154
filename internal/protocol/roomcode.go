package protocol

import (
	"crypto/rand"
	"regexp"
)

// Room codes are short enough to read over the phone: 6 uppercase
// alphanumerics, no lowercase to avoid ambiguity when typed.
const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const RoomCodeLength = 6

var roomCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// NewRoomCode generates a random room code.
func NewRoomCode() string {
	buf := make([]byte, RoomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf)
}

// ValidRoomCode reports whether s is a well-formed room code.
func ValidRoomCode(s string) bool {
	return roomCodeRegex.MatchString(s)
}
