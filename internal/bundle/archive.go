// Package bundle implements the deterministic archive format and the
// ClosePack bundler described in spec §4.7-4.8: a content-addressed,
// manifest-hashed file map that reopens to the same bytes given the same
// inputs.
package bundle

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

// epoch is the fixed archive member timestamp (spec §4.7: "a fixed
// timestamp, e.g. epoch 2000-01-01") so identical file maps always produce
// identical archive bytes.
var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ManifestEntry is one `{name, sha256, bytes}` row of a ClosePackManifest.v1.
type ManifestEntry struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
}

const schemaVersionManifest = "ClosePackManifest.v1"

// Manifest is the sorted, content-addressed index of an archive's files.
type Manifest struct {
	SchemaVersion string          `json:"schemaVersion"`
	Excludes      []string        `json:"excludes"`
	Files         []ManifestEntry `json:"files"`
	ManifestHash  string          `json:"manifestHash"`
}

// excludePattern is the single exclude glob honored by the archive hasher:
// verify/** is never hashed into the manifest, so a verification report can
// be written after the manifest is sealed without invalidating it.
const excludePattern = "verify/"

func isExcluded(name string) bool {
	return strings.HasPrefix(name, excludePattern)
}

// BuildManifest sorts the file map's non-excluded paths ascending and
// computes each entry's sha256, then the manifestHash over the canonical
// manifest core (spec §4.7 rule 1-2).
func BuildManifest(files map[string][]byte) (Manifest, error) {
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
			SHA256: cryptoutil.Sum256Hex(content),
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

func hashManifestCore(m Manifest) (string, error) {
	core := canonical.Object(
		canonical.Field("schemaVersion", m.SchemaVersion),
		canonical.Field("excludes", stringsToAny(m.Excludes)),
		canonical.Field("files", manifestEntriesToAny(m.Files)),
	)
	return cryptoutil.HashCanonical(core)
}

func manifestEntriesToAny(entries []ManifestEntry) []any {
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, canonical.Object(
			canonical.Field("name", e.Name),
			canonical.Field("sha256", e.SHA256),
			canonical.Field("bytes", e.Bytes),
		))
	}
	return out
}

func stringsToAny(s []string) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}

// WriteArchive renders a file map to a deterministic tar archive: members
// in path-ascending order (the manifest's own order; excluded verify/**
// members take their sorted position among the others), store-only
// (uncompressed), with every header's mtime pinned to epoch.
func WriteArchive(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			ModTime:  epoch,
			Typeflag: tar.TypeReg,
		}
		if err := w.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("bundle: write header %s: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("bundle: write body %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadArchive parses a deterministic archive back into its file map.
func ReadArchive(data []byte) (map[string][]byte, error) {
	r := tar.NewReader(bytes.NewReader(data))
	files := map[string][]byte{}
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundle: read archive: %w", err)
		}
		content := make([]byte, hdr.Size)
		if _, err := io.ReadFull(r, content); err != nil {
			return nil, fmt.Errorf("bundle: read body %s: %w", hdr.Name, err)
		}
		files[hdr.Name] = content
	}
	return files, nil
}
