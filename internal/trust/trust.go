// Package trust manages the trust directory: governance-root keys, time
// authority keys, and (in dev/local mode) locally-held signing keypairs.
// Layout follows spec §6: trust.json mode 0644, keypairs.json mode 0600.
package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"settld/internal/cryptoutil"
)

// KeySourceKind records how a key's private material is reachable, so
// verifiers can tell a dev keypair from a remote-only KMS key apart.
type KeySourceKind string

const (
	KeySourceLocal  KeySourceKind = "local"
	KeySourceRemote KeySourceKind = "remote"
)

// KeyProvenance captures where a key came from, kept in trust.json so an
// operator can audit how a governance root or server key is actually held.
type KeyProvenance struct {
	Source  KeySourceKind `json:"source"`
	Command string        `json:"command,omitempty"`
	URL     string        `json:"url,omitempty"`
}

// Store is the on-disk trust directory content: the set of governance root
// keys, time authority keys, and their provenance. It never contains
// private key material — that lives in keypairs.json, written separately
// with restricted permissions.
type Store struct {
	SchemaVersion   string                   `json:"schemaVersion"`
	GovernanceRoots map[string]string        `json:"governanceRoots"`
	TimeAuthorities map[string]string        `json:"timeAuthorities"`
	Provenance      map[string]KeyProvenance `json:"provenance,omitempty"`
	Mode            string                   `json:"mode"`
}

const schemaVersionTrustV1 = "TrustStore.v1"

// NewStore returns an empty trust store for the given mode ("local" or
// "remote-only").
func NewStore(mode string) *Store {
	return &Store{
		SchemaVersion:   schemaVersionTrustV1,
		GovernanceRoots: map[string]string{},
		TimeAuthorities: map[string]string{},
		Provenance:      map[string]KeyProvenance{},
		Mode:            mode,
	}
}

// AddGovernanceRoot registers a governance root public key and its
// provenance.
func (s *Store) AddGovernanceRoot(keyID, publicKeyPEM string, prov KeyProvenance) {
	s.GovernanceRoots[keyID] = publicKeyPEM
	s.Provenance[keyID] = prov
}

// AddTimeAuthority registers a time authority public key and its
// provenance.
func (s *Store) AddTimeAuthority(keyID, publicKeyPEM string, prov KeyProvenance) {
	s.TimeAuthorities[keyID] = publicKeyPEM
	s.Provenance[keyID] = prov
}

// GovernanceRootKeyIDs returns registered governance root key ids, sorted.
func (s *Store) GovernanceRootKeyIDs() []string {
	return sortedKeys(s.GovernanceRoots)
}

// TimeAuthorityKeyIDs returns registered time authority key ids, sorted.
func (s *Store) TimeAuthorityKeyIDs() []string {
	return sortedKeys(s.TimeAuthorities)
}

// IsGovernanceRoot reports whether keyID is a known governance root and
// returns its public key PEM.
func (s *Store) IsGovernanceRoot(keyID string) (string, bool) {
	pem, ok := s.GovernanceRoots[keyID]
	return pem, ok
}

// IsTimeAuthority reports whether keyID is a known time authority and
// returns its public key PEM.
func (s *Store) IsTimeAuthority(keyID string) (string, bool) {
	pem, ok := s.TimeAuthorities[keyID]
	return pem, ok
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LocalKeyPairs is the keypairs.json content: private key material for
// locally-held keys. Never persisted in "remote-only" mode.
type LocalKeyPairs struct {
	SchemaVersion string              `json:"schemaVersion"`
	Keys          map[string]KeyEntry `json:"keys"`
}

// KeyEntry is one locally-held keypair.
type KeyEntry struct {
	KeyID         string `json:"keyId"`
	Role          string `json:"role"` // governanceRoot | server | timeAuthority
	PublicKeyPEM  string `json:"publicKeyPem"`
	PrivateKeyPEM string `json:"privateKeyPem"`
}

const schemaVersionKeyPairsV1 = "LocalKeyPairs.v1"

// NewLocalKeyPairs returns an empty keypairs file.
func NewLocalKeyPairs() *LocalKeyPairs {
	return &LocalKeyPairs{SchemaVersion: schemaVersionKeyPairsV1, Keys: map[string]KeyEntry{}}
}

// Add registers a keypair under its key id.
func (l *LocalKeyPairs) Add(role string, kp *cryptoutil.KeyPair) {
	l.Keys[kp.KeyID] = KeyEntry{
		KeyID:         kp.KeyID,
		Role:          role,
		PublicKeyPEM:  kp.PublicKeyPEM,
		PrivateKeyPEM: kp.PrivateKeyPEM,
	}
}

const (
	TrustFileName    = "trust.json"
	KeyPairsFileName = "keypairs.json"

	trustFileMode    = 0o644
	keyPairsFileMode = 0o600
)

// Save writes trust.json (0644) and, if keypairs is non-nil, keypairs.json
// (0600) under dir.
func Save(dir string, store *Store, keypairs *LocalKeyPairs) (trustPath string, keypairsPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("trust: create dir: %w", err)
	}
	trustPath = filepath.Join(dir, TrustFileName)
	if err := writeJSON(trustPath, store, trustFileMode); err != nil {
		return "", "", err
	}
	if keypairs == nil {
		return trustPath, "", nil
	}
	keypairsPath = filepath.Join(dir, KeyPairsFileName)
	if err := writeJSON(keypairsPath, keypairs, keyPairsFileMode); err != nil {
		return "", "", err
	}
	return trustPath, keypairsPath, nil
}

// Load reads trust.json (and keypairs.json, if present) from dir.
func Load(dir string) (*Store, *LocalKeyPairs, error) {
	store := &Store{}
	if err := readJSON(filepath.Join(dir, TrustFileName), store); err != nil {
		return nil, nil, err
	}
	keypairs := &LocalKeyPairs{}
	kpPath := filepath.Join(dir, KeyPairsFileName)
	if _, statErr := os.Stat(kpPath); statErr == nil {
		if err := readJSON(kpPath, keypairs); err != nil {
			return nil, nil, err
		}
		return store, keypairs, nil
	}
	return store, nil, nil
}

func writeJSON(path string, v any, mode os.FileMode) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("trust: marshal %s: %w", path, err)
	}
	buf = append(buf, '\n')
	if err := os.WriteFile(path, buf, mode); err != nil {
		return fmt.Errorf("trust: write %s: %w", path, err)
	}
	return os.Chmod(path, mode)
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("trust: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("trust: decode %s: %w", path, err)
	}
	return nil
}
