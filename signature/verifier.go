package signature

import "crypto/hmac"

// Verify checks whether sig matches the expected HMAC-SHA256 signature for
// the payload and secret. The comparison is constant time.
func (s *Signer) Verify(payload []byte, secret, sig string) bool {
	return Verify(payload, secret, sig)
}

// Verify checks whether sig matches the expected HMAC-SHA256 signature for
// the payload and secret. The comparison is constant time.
func Verify(payload []byte, secret, sig string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}
