package drgreen

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"testing"
)

type keyPair struct {
	private string
	public  string
}

func pemEncode(typ string, der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}))
}

func publicPEM(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return pemEncode("PUBLIC KEY", der)
}

func pkcs8(t *testing.T, key any) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	return pemEncode("PRIVATE KEY", der)
}

func testKeys(t *testing.T) map[string]keyPair {
	t.Helper()
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	edPub, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	sec1, err := x509.MarshalECPrivateKey(ecKey)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]keyPair{
		"rsa-pkcs8":   {pkcs8(t, rsaKey), publicPEM(t, &rsaKey.PublicKey)},
		"rsa-pkcs1":   {pemEncode("RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey)), publicPEM(t, &rsaKey.PublicKey)},
		"ecdsa-pkcs8": {pkcs8(t, ecKey), publicPEM(t, &ecKey.PublicKey)},
		"ecdsa-sec1":  {pemEncode("EC PRIVATE KEY", sec1), publicPEM(t, &ecKey.PublicKey)},
		"ed25519":     {pkcs8(t, edKey), publicPEM(t, edPub)},
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := `{"clientId":"c1","items":[{"strainId":"s1","quantity":2}]}`
	for name, kp := range testKeys(t) {
		t.Run(name, func(t *testing.T) {
			sig, err := Sign(payload, kp.private)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if !Verify(payload, sig, kp.public) {
				t.Fatal("signature did not verify")
			}
			if Verify(payload+" ", sig, kp.public) {
				t.Fatal("signature verified over altered payload")
			}

			wrapped := base64.StdEncoding.EncodeToString([]byte(kp.private))
			sig2, err := Sign(payload, wrapped)
			if err != nil {
				t.Fatalf("sign with base64 key: %v", err)
			}
			if !Verify(payload, sig2, kp.public) {
				t.Fatal("base64-wrapped key signature did not verify")
			}
		})
	}
}

func TestSignIsDeterministic(t *testing.T) {
	payload := `{"orderId":"o1"}`
	for name, kp := range testKeys(t) {
		t.Run(name, func(t *testing.T) {
			first, err := Sign(payload, kp.private)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			for i := 0; i < 3; i++ {
				again, err := Sign(payload, kp.private)
				if err != nil {
					t.Fatalf("sign: %v", err)
				}
				if again != first {
					t.Fatalf("signature changed between calls: %q != %q", again, first)
				}
			}
		})
	}
}

func TestVerifyWithSecretKey(t *testing.T) {
	payload := "payload"
	for name, kp := range testKeys(t) {
		t.Run(name, func(t *testing.T) {
			sig, err := Sign(payload, kp.private)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if !Verify(payload, sig, kp.private) {
				t.Fatal("signature did not verify against the signing secret")
			}
			wrapped := base64.StdEncoding.EncodeToString([]byte(kp.private))
			if !Verify(payload, sig, wrapped) {
				t.Fatal("signature did not verify against the base64-wrapped secret")
			}
			if Verify(payload+"x", sig, kp.private) {
				t.Fatal("signature verified over altered payload")
			}
		})
	}
}

func TestSignEmptyPayload(t *testing.T) {
	kp := testKeys(t)["ed25519"]
	sig, err := Sign("", kp.private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify("", sig, kp.public) {
		t.Fatal("empty payload signature did not verify")
	}
}

func TestSignMalformedKey(t *testing.T) {
	for _, secret := range []string{"", "not a key", base64.StdEncoding.EncodeToString([]byte("still not a key")), pemEncode("PRIVATE KEY", []byte("garbage"))} {
		_, err := Sign("payload", secret)
		var signErr *SigningError
		if !errors.As(err, &signErr) {
			t.Fatalf("secret %q: want *SigningError, got %v", secret, err)
		}
		if errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("signing error must not match ErrMissingCredentials")
		}
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	kp := testKeys(t)["ecdsa-pkcs8"]
	sig, _ := Sign("x", kp.private)
	cases := []struct{ payload, sig, pub string }{
		{"x", "%%%", kp.public},
		{"x", "", kp.public},
		{"x", sig, "not a pem"},
		{"x", sig, pemEncode("PUBLIC KEY", []byte("junk"))},
	}
	for i, c := range cases {
		if Verify(c.payload, c.sig, c.pub) {
			t.Fatalf("case %d verified", i)
		}
	}
}
