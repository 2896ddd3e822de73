package util

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	steamGuardChars    = "23456789BCDFGHJKMNPQRTVWXY"
	steamGuardCodeLen  = 5
	steamGuardInterval = 30
)

// SteamGuardCode derives the five character mobile authenticator code for
// the 30 second window containing at. Codes are time-windowed, so callers
// derive a fresh one per login attempt.
func SteamGuardCode(sharedSecret string, at time.Time) (string, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sharedSecret))
	if err != nil {
		return "", fmt.Errorf("decode shared secret: %w", err)
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(at.Unix()/steamGuardInterval))

	mac := hmac.New(sha1.New, key)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	full := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := make([]byte, steamGuardCodeLen)
	for i := range code {
		code[i] = steamGuardChars[full%uint32(len(steamGuardChars))]
		full /= uint32(len(steamGuardChars))
	}
	return string(code), nil
}
