package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"nyayasetu-backend/models"
)

// CurrentKey holds the index version the service should attach to
const CurrentKey = "indexes/CURRENT"

func CorpusKey(corpusVersion string) string {
	return fmt.Sprintf("snapshots/%s/corpus.json", corpusVersion)
}

func ManifestKey(indexVersion string) string {
	return fmt.Sprintf("indexes/%s/manifest.json", indexVersion)
}

// SnapshotStore persists corpus snapshots and index manifests so that an
// index built by one process can be attached by another.
type SnapshotStore struct {
	storage Storage
}

func NewSnapshotStore(s Storage) *SnapshotStore {
	return &SnapshotStore{storage: s}
}

// SaveCorpus stores the documents of a corpus version
func (ss *SnapshotStore) SaveCorpus(ctx context.Context, corpusVersion string, docs []models.LegalDocument) error {
	return ss.putJSON(ctx, CorpusKey(corpusVersion), docs)
}

// LoadCorpus returns the documents of a corpus version
func (ss *SnapshotStore) LoadCorpus(ctx context.Context, corpusVersion string) ([]models.LegalDocument, error) {
	var docs []models.LegalDocument
	if err := ss.getJSON(ctx, CorpusKey(corpusVersion), &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Publish writes the manifest and then moves CURRENT to it
func (ss *SnapshotStore) Publish(ctx context.Context, manifest models.SnapshotManifest) error {
	if manifest.IndexVersion == "" {
		return errors.New("manifest has no index version")
	}
	if err := ss.putJSON(ctx, ManifestKey(manifest.IndexVersion), manifest); err != nil {
		return err
	}
	if err := ss.storage.Put(ctx, CurrentKey, strings.NewReader(manifest.IndexVersion)); err != nil {
		return fmt.Errorf("failed to update current index pointer: %w", err)
	}
	return nil
}

// Manifest loads the manifest of one index version
func (ss *SnapshotStore) Manifest(ctx context.Context, indexVersion string) (*models.SnapshotManifest, error) {
	var m models.SnapshotManifest
	if err := ss.getJSON(ctx, ManifestKey(indexVersion), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Current loads the manifest CURRENT points at; ErrNotFound if none was published
func (ss *SnapshotStore) Current(ctx context.Context) (*models.SnapshotManifest, error) {
	rc, err := ss.storage.Get(ctx, CurrentKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read current index pointer: %w", err)
	}
	version := strings.TrimSpace(string(raw))
	if version == "" {
		return nil, fmt.Errorf("%w: empty current index pointer", ErrNotFound)
	}
	return ss.Manifest(ctx, version)
}

func (ss *SnapshotStore) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := ss.storage.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (ss *SnapshotStore) getJSON(ctx context.Context, key string, v any) error {
	rc, err := ss.storage.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
