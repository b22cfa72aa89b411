// Package timestampproof implements the time-authority co-signature
// described in spec §4.9: a signed binding of a message hash to a
// timestamp, appended to a target artifact's core before that artifact's
// own hash is computed.
package timestampproof

import (
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

const schemaVersionTimestampProof = "TimestampProof.v1"

// Proof is a time authority's co-signature over a message hash and
// timestamp.
type Proof struct {
	SchemaVersion string `json:"schemaVersion"`
	MessageHash   string `json:"messageHash"`
	Timestamp     string `json:"timestamp"`
	SignerKeyID   string `json:"signerKeyId"`
	Signature     string `json:"signature"`
}

func formatRFC3339Milli(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Issue has a time authority co-sign canonical({messageHash, timestamp,
// signerKeyId}) using the PurposeTime-scoped signer.
func Issue(messageHash string, at time.Time, signer cryptoutil.Signer, signerKeyID string) (Proof, error) {
	timestamp := formatRFC3339Milli(at)
	core := canonical.Object(
		canonical.Field("messageHash", messageHash),
		canonical.Field("timestamp", timestamp),
		canonical.Field("signerKeyId", signerKeyID),
	)
	hash, err := cryptoutil.HashCanonical(core)
	if err != nil {
		return Proof{}, err
	}
	sig, err := cryptoutil.SignHashHex(hash, signer, cryptoutil.PurposeTime, "timestamp-proof")
	if err != nil {
		return Proof{}, err
	}
	return Proof{
		SchemaVersion: schemaVersionTimestampProof,
		MessageHash:   messageHash,
		Timestamp:     timestamp,
		SignerKeyID:   signerKeyID,
		Signature:     sig,
	}, nil
}

// Verify re-derives the proof's binding hash and checks its signature
// against the time authority's public key.
func Verify(p Proof, publicKeyPEM string) (bool, error) {
	core := canonical.Object(
		canonical.Field("messageHash", p.MessageHash),
		canonical.Field("timestamp", p.Timestamp),
		canonical.Field("signerKeyId", p.SignerKeyID),
	)
	hash, err := cryptoutil.HashCanonical(core)
	if err != nil {
		return false, err
	}
	return cryptoutil.VerifyHashHex(hash, p.Signature, publicKeyPEM)
}

// AsAny renders the proof for embedding into an artifact's hashed core
// (spec §4.9: "appended to the core of the target artifact before
// computing the artifact's own hash").
func (p Proof) AsAny() any {
	return canonical.Object(
		canonical.Field("schemaVersion", p.SchemaVersion),
		canonical.Field("messageHash", p.MessageHash),
		canonical.Field("timestamp", p.Timestamp),
		canonical.Field("signerKeyId", p.SignerKeyID),
		canonical.Field("signature", p.Signature),
	)
}
