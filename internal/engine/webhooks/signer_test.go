package webhooks

import (
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"lead.created"}`)
	ts := int64(1700000000)

	// Calculated using: echo -n '1700000000.{"event":"lead.created"}' | openssl dgst -sha256 -hmac "whsec_test"
	expected := "fdd93c8881ba06421d5630e8b2384e748a68dbbd165fdfda6f3f2ac3c12f4583"

	got := Sign(secret, body, ts)

	if got != expected {
		t.Errorf("Sign() = %v, want %v", got, expected)
	}
}

func TestVerify(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"lead.created"}`)
	now := time.Unix(1700000000, 0)
	tolerance := 5 * time.Minute

	ts := now.Unix()
	sig := Sign(secret, body, ts)

	t.Run("Valid Signature", func(t *testing.T) {
		if !Verify(secret, body, sig, ts, now, tolerance) {
			t.Error("Expected valid signature to verify")
		}
	})

	t.Run("Tampered Body", func(t *testing.T) {
		tampered := []byte(`{"event":"lead.deleted"}`)
		if Verify(secret, tampered, sig, ts, now, tolerance) {
			t.Error("Expected tampered body to fail verification")
		}
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		if Verify("whsec_other", body, sig, ts, now, tolerance) {
			t.Error("Expected wrong secret to fail verification")
		}
	})

	t.Run("Timestamp Too Old", func(t *testing.T) {
		old := now.Unix() - int64(tolerance.Seconds()) - 1
		oldSig := Sign(secret, body, old)
		if Verify(secret, body, oldSig, old, now, tolerance) {
			t.Error("Expected stale timestamp to fail verification")
		}
	})

	t.Run("Timestamp At Boundary", func(t *testing.T) {
		edge := now.Unix() - int64(tolerance.Seconds())
		edgeSig := Sign(secret, body, edge)
		if !Verify(secret, body, edgeSig, edge, now, tolerance) {
			t.Error("Expected timestamp at tolerance boundary to verify")
		}
	})

	t.Run("Timestamp In Future", func(t *testing.T) {
		future := now.Unix() + int64(tolerance.Seconds()) + 1
		futureSig := Sign(secret, body, future)
		if Verify(secret, body, futureSig, future, now, tolerance) {
			t.Error("Expected far-future timestamp to fail verification")
		}
	})
}

func TestVerifyStaticToken(t *testing.T) {
	if !VerifyStaticToken("tok", "tok") {
		t.Error("Expected matching token to verify")
	}
	if VerifyStaticToken("tok", "nope") {
		t.Error("Expected mismatched token to fail")
	}
	if VerifyStaticToken("", "") {
		t.Error("Expected empty configured token to always fail")
	}
}

func TestVerifyBodySignature(t *testing.T) {
	secret := "appsecret"
	body := []byte(`{"object":"page"}`)

	// Calculated using: echo -n '{"object":"page"}' | openssl dgst -sha256 -hmac "appsecret"
	valid := "sha256=b38a2f589e8e63c7fc3318ee5fad162aa1c05bd62cb1ec87c9a61641619505e2"

	if !VerifyBodySignature(secret, body, valid) {
		t.Error("Expected valid body signature to verify")
	}
	if VerifyBodySignature(secret, body, "sha256=deadbeef") {
		t.Error("Expected wrong digest to fail")
	}
	if VerifyBodySignature(secret, body, "sha1=b38a2f589e8e63c7fc3318ee5fad162aa1c05bd62cb1ec87c9a61641619505e2") {
		t.Error("Expected non-sha256 scheme to fail")
	}
	if VerifyBodySignature(secret, body, "") {
		t.Error("Expected empty header to fail")
	}
}
