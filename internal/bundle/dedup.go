package bundle

import (
	"encoding/hex"
	"sort"
	"sync"

	"lukechampine.com/blake3"

	"settld/internal/cryptoutil"
)

// DedupCache memoizes each embedded file's canonical sha256 by a cheap
// BLAKE3 fingerprint, so repeated ClosePack builds over the same invoice
// bundle don't re-hash byte-identical embedded files on every build. The
// manifest itself always hashes with SHA-256 (spec §4.7 invariants 2/3/5);
// BLAKE3 never appears in a manifest or signed artifact, it only gates
// whether the SHA-256 pass is skipped.
type DedupCache struct {
	mu    sync.Mutex
	bySum map[string]string // blake3 hex -> sha256 hex
}

// NewDedupCache returns an empty cache.
func NewDedupCache() *DedupCache {
	return &DedupCache{bySum: map[string]string{}}
}

func (c *DedupCache) sha256Hex(content []byte) string {
	if c == nil {
		return cryptoutil.Sum256Hex(content)
	}
	sum := blake3.Sum256(content)
	key := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if hash, ok := c.bySum[key]; ok {
		return hash
	}
	hash := cryptoutil.Sum256Hex(content)
	c.bySum[key] = hash
	return hash
}

// BuildManifestCached is BuildManifest with cache's BLAKE3 fast-path: a file
// whose BLAKE3 fingerprint was already seen reuses its memoized SHA-256
// instead of re-hashing. A nil cache behaves exactly like BuildManifest.
func BuildManifestCached(files map[string][]byte, cache *DedupCache) (Manifest, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		if isExcluded(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]ManifestEntry, 0, len(names))
	for _, name := range names {
		content := files[name]
		entries = append(entries, ManifestEntry{
			Name:   name,
			SHA256: cache.sha256Hex(content),
			Bytes:  len(content),
		})
	}

	manifest := Manifest{
		SchemaVersion: schemaVersionManifest,
		Excludes:      []string{excludePattern + "**"},
		Files:         entries,
	}

	hash, err := hashManifestCore(manifest)
	if err != nil {
		return Manifest{}, err
	}
	manifest.ManifestHash = hash
	return manifest, nil
}
