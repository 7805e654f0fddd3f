package core

import (
	"crypto/subtle"
	"strconv"
	"time"
)

// HashPassword is what devices store and what the challenge is keyed on.
func HashPassword(password string) string {
	return MD5Hex([]byte(password))
}

// Challenge answers a device nonce. The client nonce mixes in the device
// address and the wall clock so that two answers never repeat.
func Challenge(hashedPassword, deviceAddress, nonce string, now time.Time) (clientNonce, response string) {
	clientNonce = MD5Hex([]byte(nonce + deviceAddress + strconv.FormatInt(now.UnixMilli(), 10)))
	response = challengeResponse(hashedPassword, nonce, clientNonce)
	return clientNonce, response
}

// VerifyChallenge is the device side of Challenge.
func VerifyChallenge(hashedPassword, nonce, clientNonce, response string) bool {
	expected := challengeResponse(hashedPassword, nonce, clientNonce)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(response)) == 1
}

func challengeResponse(hashedPassword, nonce, clientNonce string) string {
	return MD5Hex([]byte(hashedPassword + ":" + nonce + ":" + clientNonce))
}
