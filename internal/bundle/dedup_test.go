package bundle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildManifestCachedMatchesUncachedHashes(t *testing.T) {
	files := map[string][]byte{"a.json": []byte(`{"a":1}`), "b.json": []byte(`{"b":2}`)}

	cache := NewDedupCache()
	cached, err := BuildManifestCached(files, cache)
	require.NoError(t, err)

	plain, err := BuildManifest(files)
	require.NoError(t, err)

	require.Equal(t, plain.ManifestHash, cached.ManifestHash)
	require.Equal(t, plain.Files, cached.Files)
}

func TestBuildManifestCachedReusesSHA256ForRepeatedBlake3Fingerprint(t *testing.T) {
	cache := NewDedupCache()
	content := []byte(`{"same":"bytes"}`)

	first := cache.sha256Hex(content)
	second := cache.sha256Hex(content)
	require.Equal(t, first, second)
	require.Len(t, cache.bySum, 1)
}

func TestBuildManifestCachedWithNilCacheBehavesLikeBuildManifest(t *testing.T) {
	files := map[string][]byte{"a.json": []byte(`{"a":1}`)}

	withNil, err := BuildManifestCached(files, nil)
	require.NoError(t, err)

	plain, err := BuildManifest(files)
	require.NoError(t, err)

	require.Equal(t, plain.ManifestHash, withNil.ManifestHash)
}
