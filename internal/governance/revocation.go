package governance

import (
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

const schemaVersionRevocationListV1 = "RevocationList.v1"

// Rotation links a retired key to its successor. IsGoverned treats a key
// rotated-with-successor as still governed; ResolveSuccessor follows the
// chain to the newest key.
type Rotation struct {
	KeyID    string    `json:"keyId"`
	NewKeyID string    `json:"newKeyId"`
	At       time.Time `json:"at"`
}

// Revocation marks a key as no longer trusted from At onward.
type Revocation struct {
	KeyID  string    `json:"keyId"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// RevocationList is the signed, versioned list of key rotations and
// revocations governance publishes.
type RevocationList struct {
	ListID      string       `json:"listId"`
	Rotations   []Rotation   `json:"rotations"`
	Revocations []Revocation `json:"revocations"`
	SignerKeyID string       `json:"signerKeyId"`
	SignedAt    time.Time    `json:"signedAt"`
	ListHash    string       `json:"listHash"`
	Signature   string       `json:"signature,omitempty"`
}

func (r *RevocationList) hashedCore() any {
	return canonical.Object(
		canonical.Field("schemaVersion", schemaVersionRevocationListV1),
		canonical.Field("listId", r.ListID),
		canonical.Field("rotations", rotationsToAny(r.Rotations)),
		canonical.Field("revocations", revocationsToAny(r.Revocations)),
		canonical.Field("signerKeyId", r.SignerKeyID),
		canonical.Field("signedAt", formatRFC3339Milli(r.SignedAt)),
	)
}

func rotationsToAny(rs []Rotation) []any {
	out := make([]any, 0, len(rs))
	for _, r := range rs {
		out = append(out, canonical.Object(
			canonical.Field("keyId", r.KeyID),
			canonical.Field("newKeyId", r.NewKeyID),
			canonical.Field("at", formatRFC3339Milli(r.At)),
		))
	}
	return out
}

func revocationsToAny(rs []Revocation) []any {
	out := make([]any, 0, len(rs))
	for _, r := range rs {
		out = append(out, canonical.Object(
			canonical.Field("keyId", r.KeyID),
			canonical.Field("reason", r.Reason),
			canonical.Field("at", formatRFC3339Milli(r.At)),
		))
	}
	return out
}

// Hash computes and stores ListHash over the hashed core (excluding
// Signature).
func (r *RevocationList) Hash() (string, error) {
	h, err := cryptoutil.HashCanonical(r.hashedCore())
	if err != nil {
		return "", err
	}
	r.ListHash = h
	return h, nil
}

// Sign hashes the list and signs it under the given signer, setting both
// ListHash and Signature.
func (r *RevocationList) Sign(signer cryptoutil.Signer) error {
	h, err := r.Hash()
	if err != nil {
		return err
	}
	sig, err := cryptoutil.SignHashHex(h, signer, cryptoutil.PurposeGovernance, r.ListID)
	if err != nil {
		return err
	}
	r.Signature = sig
	return nil
}

// VerifySignature checks ListHash and Signature against publicKeyPEM.
func (r *RevocationList) VerifySignature(publicKeyPEM string) (bool, error) {
	h, err := cryptoutil.HashCanonical(r.hashedCore())
	if err != nil {
		return false, err
	}
	if h != r.ListHash {
		return false, nil
	}
	return cryptoutil.VerifyHashHex(h, r.Signature, publicKeyPEM)
}

// ResolveSuccessor follows the rotation chain starting at keyID and returns
// the final, unrotated key id.
func (r *RevocationList) ResolveSuccessor(keyID string) string {
	seen := map[string]bool{}
	current := keyID
	for {
		if seen[current] {
			return current // cyclical rotation chain; bail rather than loop forever
		}
		seen[current] = true
		next, ok := r.successorOf(current)
		if !ok {
			return current
		}
		current = next
	}
}

func (r *RevocationList) successorOf(keyID string) (string, bool) {
	for _, rot := range r.Rotations {
		if rot.KeyID == keyID {
			return rot.NewKeyID, true
		}
	}
	return "", false
}

// IsRotatedWithSuccessor reports whether keyID has a recorded rotation (as
// opposed to a bare revocation).
func (r *RevocationList) IsRotatedWithSuccessor(keyID string) bool {
	_, ok := r.successorOf(keyID)
	return ok
}

// RevokedAt reports whether keyID is revoked as of 'at', returning the
// matching revocation when true.
func (r *RevocationList) RevokedAt(keyID string, at time.Time) (Revocation, bool) {
	for _, rev := range r.Revocations {
		if rev.KeyID == keyID && !at.Before(rev.At) {
			return rev, true
		}
	}
	return Revocation{}, false
}

func formatRFC3339Milli(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
