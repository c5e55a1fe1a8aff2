package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stocklane/dispatch/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := []byte(`{"event":"test"}`)
	secret := "whsec_testsecret123"

	got := signature.Sign(payload, secret)

	// Compute expected HMAC-SHA256 independently.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignDeterministic(t *testing.T) {
	payload := []byte(`{"order_id":1001,"total":"99.99"}`)
	secret := "whsec_deterministic"

	first := signature.Sign(payload, secret)
	second := signature.Sign(payload, secret)

	if first != second {
		t.Errorf("Sign() not deterministic: %q vs %q", first, second)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := signature.NewSigner()
	payload := []byte(`{"sku":"WID-1","delta":-3}`)
	secret := "whsec_roundtripsecret"

	sig := signer.Sign(payload, secret)
	if !signer.Verify(payload, secret, sig) {
		t.Error("Verify() returned false for valid signature")
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	payload := []byte(`{"original":true}`)
	secret := "whsec_tampersecret"

	sig := signature.Sign(payload, secret)

	tampered := []byte(`{"original":false}`)
	if signature.Verify(tampered, secret, sig) {
		t.Error("Verify() returned true for tampered payload")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	payload := []byte(`{"data":"value"}`)

	sig := signature.Sign(payload, "whsec_correct")

	if signature.Verify(payload, "whsec_wrong", sig) {
		t.Error("Verify() returned true for wrong secret")
	}
}

func TestSignatureFormat(t *testing.T) {
	sig := signature.Sign([]byte("test"), "secret")

	// SHA256 = 32 bytes = 64 lowercase hex chars, no prefix.
	if len(sig) != 64 {
		t.Errorf("expected signature length 64, got %d", len(sig))
	}
	if sig != strings.ToLower(sig) {
		t.Errorf("signature should be lowercase hex, got %q", sig)
	}
	if _, err := hex.DecodeString(sig); err != nil {
		t.Errorf("signature is not valid hex: %v", err)
	}
}
