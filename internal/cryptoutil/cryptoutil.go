// Package cryptoutil wraps the primitives settld hashes and signs with:
// SHA-256 content addressing and Ed25519 signatures over 32-byte hashes.
// The spec names these algorithms explicitly, so this package reaches for
// the standard library rather than a third-party wrapper — see DESIGN.md.
package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"settld/internal/canonical"
)

// Sum256 returns the raw SHA-256 digest of b.
func Sum256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// Sum256Hex returns the lowercase hex SHA-256 digest of b.
func Sum256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashCanonical canonicalizes v and returns its lowercase hex SHA-256
// digest. This is the single call site every artifact/event/bundle hash in
// settld should route through, so canonicalization and hashing never drift
// apart.
func HashCanonical(v any) (string, error) {
	raw, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	return Sum256Hex(raw), nil
}

// KeyPair is a generated Ed25519 keypair exported in PEM form: public key as
// SPKI, private key as PKCS8 — the two encodings downstream verifiers and
// the trust directory expect.
type KeyPair struct {
	PublicKeyPEM  string
	PrivateKeyPEM string
	KeyID         string
}

// GenerateKeyPair creates a fresh Ed25519 keypair and derives its key id.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: generate key: %w", err)
	}
	pubPEM, err := EncodePublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}
	privPEM, err := EncodePrivateKeyPEM(priv)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		PublicKeyPEM:  pubPEM,
		PrivateKeyPEM: privPEM,
		KeyID:         DeriveKeyID(pubPEM),
	}, nil
}

// DeriveKeyID implements keyId = "key_" + sha256Hex(publicKeyPem)[0..24].
func DeriveKeyID(publicKeyPEM string) string {
	digest := Sum256Hex([]byte(publicKeyPEM))
	return "key_" + digest[:24]
}

// EncodePublicKeyPEM encodes an Ed25519 public key as an SPKI PEM block.
func EncodePublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// EncodePrivateKeyPEM encodes an Ed25519 private key as a PKCS8 PEM block.
func EncodePrivateKeyPEM(priv ed25519.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePublicKeyPEM parses an SPKI PEM block back into an Ed25519 public key.
func DecodePublicKeyPEM(pemStr string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("cryptoutil: invalid PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("cryptoutil: not an Ed25519 public key")
	}
	return pub, nil
}

// DecodePrivateKeyPEM parses a PKCS8 PEM block back into an Ed25519 private key.
func DecodePrivateKeyPEM(pemStr string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("cryptoutil: invalid PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("cryptoutil: not an Ed25519 private key")
	}
	return priv, nil
}

// Purpose scopes a signature to the kind of object being signed, so a
// signature produced for one artifact type can never be replayed as a
// signature over another.
type Purpose string

const (
	PurposeServer     Purpose = "server"
	PurposeGovernance Purpose = "governance"
	PurposeTime       Purpose = "time"
)

// Signer is the capability interface a signing site depends on. Exactly one
// of the two variants below must be usable, or signing fails with
// ErrSignerCannotSign.
type Signer struct {
	// PrivateKeyPEM signs locally when non-empty.
	PrivateKeyPEM string
	// Remote signs via a provider capability (KMS, HSM, remote signer
	// service) when PrivateKeyPEM is empty.
	Remote RemoteSigner
	KeyID  string
}

// RemoteSigner is implemented by provider-backed signers (KMS, remote signer
// daemons). messageBytes is the raw 32-byte hash being signed.
type RemoteSigner interface {
	Sign(keyID string, algorithm string, messageBytes []byte, purpose Purpose, context string) (string, error)
}

// ErrSignerCannotSign is returned when a Signer has neither local key
// material nor a remote capability.
var ErrSignerCannotSign = errors.New("SIGNER_CANNOT_SIGN")

// ErrSignerProviderInvalidResponse wraps an error returned by a remote
// signer. The remote signature is passed through as returned; it is not
// base64-decoded or verified here.
var ErrSignerProviderInvalidResponse = errors.New("SIGNER_PROVIDER_INVALID_RESPONSE")

const algorithmEd25519SHA256 = "ED25519-SHA256"

// SignHashHex signs the 32-byte hash identified by hashHex and returns a
// base64-encoded signature.
func SignHashHex(hashHex string, signer Signer, purpose Purpose, context string) (string, error) {
	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: decode hash hex: %w", err)
	}
	if len(hashBytes) != sha256.Size {
		return "", fmt.Errorf("cryptoutil: hash must be %d bytes, got %d", sha256.Size, len(hashBytes))
	}
	switch {
	case signer.PrivateKeyPEM != "":
		priv, err := DecodePrivateKeyPEM(signer.PrivateKeyPEM)
		if err != nil {
			return "", err
		}
		sig := ed25519.Sign(priv, hashBytes)
		return base64Encode(sig), nil
	case signer.Remote != nil:
		sigB64, err := signer.Remote.Sign(signer.KeyID, algorithmEd25519SHA256, hashBytes, purpose, context)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSignerProviderInvalidResponse, err)
		}
		return sigB64, nil
	default:
		return "", ErrSignerCannotSign
	}
}

// VerifyHashHex reports whether sigB64 is a valid Ed25519 signature over
// hashHex under publicKeyPEM.
func VerifyHashHex(hashHex string, sigB64 string, publicKeyPEM string) (bool, error) {
	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, fmt.Errorf("cryptoutil: decode hash hex: %w", err)
	}
	sig, err := base64Decode(sigB64)
	if err != nil {
		return false, fmt.Errorf("cryptoutil: decode signature: %w", err)
	}
	pub, err := DecodePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, hashBytes, sig), nil
}
