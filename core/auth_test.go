package core

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestHashPassword(t *testing.T) {
	assert.Equal(t, "5ebe2294ecd0e0f08eab7690d2a6ee69", HashPassword("secret"))
}

func TestChallengeChain(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	hashed := HashPassword("secret")

	clientNonce, response := Challenge(hashed, "192.168.1.40", "deadbeef", now)

	assert.Equal(t, MD5Hex([]byte("deadbeef192.168.1.401700000000123")), clientNonce)
	assert.Equal(t, MD5Hex([]byte(hashed+":deadbeef:"+clientNonce)), response)
	assert.Regexp(t, hex32, clientNonce)
	assert.Regexp(t, hex32, response)
}

func TestVerifyChallenge(t *testing.T) {
	hashed := HashPassword("secret")
	clientNonce, response := Challenge(hashed, "10.0.0.2", "abc123", time.Now())

	assert.True(t, VerifyChallenge(hashed, "abc123", clientNonce, response))
	assert.False(t, VerifyChallenge(HashPassword("wrong"), "abc123", clientNonce, response))
	assert.False(t, VerifyChallenge(hashed, "other", clientNonce, response))
	assert.False(t, VerifyChallenge(hashed, "abc123", clientNonce, ""))
}

func TestChallengeVariesWithClock(t *testing.T) {
	hashed := HashPassword("secret")
	base := time.UnixMilli(1700000000000)

	a, _ := Challenge(hashed, "10.0.0.2", "n", base)
	b, _ := Challenge(hashed, "10.0.0.2", "n", base.Add(time.Millisecond))
	assert.NotEqual(t, a, b)
}
