package drgreen

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Sign signs payload with the PEM private key in secretKey and returns the
// signature as standard base64. secretKey may also be the base64 encoding of
// the PEM text. RSA keys sign PKCS#1 v1.5 over SHA-256, ECDSA keys produce an
// ASN.1 signature over SHA-256 with RFC 6979 nonces and Ed25519 keys sign the
// payload directly. The same payload and key always give the same signature.
func Sign(payload, secretKey string) (string, error) {
	key, err := parsePrivateKey(secretKey)
	if err != nil {
		return "", &SigningError{Err: err}
	}
	var sig []byte
	switch k := key.(type) {
	case *rsa.PrivateKey:
		digest := sha256.Sum256([]byte(payload))
		sig, err = rsa.SignPKCS1v15(nil, k, crypto.SHA256, digest[:])
	case *ecdsa.PrivateKey:
		digest := sha256.Sum256([]byte(payload))
		// A nil random source selects deterministic nonces.
		sig, err = k.Sign(nil, digest[:], crypto.SHA256)
	case ed25519.PrivateKey:
		sig = ed25519.Sign(k, []byte(payload))
	default:
		err = fmt.Errorf("unsupported key type %T", key)
	}
	if err != nil {
		return "", &SigningError{Err: err}
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature is a valid Sign output for payload. key is
// either the public key or the secret key Sign was given, as PEM or base64 PEM.
// Any malformed input yields false.
func Verify(payload, signature, key string) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) == 0 {
		return false
	}
	pub := parsePublicKey(key)
	switch k := pub.(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256([]byte(payload))
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, digest[:], sig) == nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256([]byte(payload))
		return ecdsa.VerifyASN1(k, digest[:], sig)
	case ed25519.PublicKey:
		return ed25519.Verify(k, []byte(payload), sig)
	}
	return false
}

func parsePublicKey(key string) crypto.PublicKey {
	block := decodePEM(key)
	if block == nil {
		return nil
	}
	if p, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return p
	}
	if p, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return p
	}
	if k, err := parsePrivateKey(key); err == nil {
		return k.Public()
	}
	return nil
}

// decodePEM accepts PEM text or its base64 encoding.
func decodePEM(s string) *pem.Block {
	if raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s)); err == nil {
		if block, _ := pem.Decode(raw); block != nil {
			return block
		}
	}
	block, _ := pem.Decode([]byte(s))
	return block
}

func parsePrivateKey(secret string) (crypto.Signer, error) {
	block := decodePEM(secret)
	if block == nil {
		return nil, errors.New("secret key is not a PEM block")
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := k.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", k)
		}
		return signer, nil
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("unrecognised private key in %q block", block.Type)
}
