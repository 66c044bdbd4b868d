// Package asset owns audio content: content-addressed import with
// deduplication, decoding to PCM, an in-memory PCM cache for the graph
// compiler, and the watch-folder importer.
package asset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"mixdown/audio"
	"mixdown/logger"
	"mixdown/model"
	"mixdown/storage"
)

// Decoder turns encoded audio bytes into PCM at the project sample rate.
// It is an external collaborator: failures mark the asset unusable but
// never abort the session.
type Decoder interface {
	Decode(ctx context.Context, encoded []byte) (*audio.PCM, error)
}

// MetadataRepo persists asset metadata rows. Optional.
type MetadataRepo interface {
	SaveAsset(a *model.Asset) error
}

// Store is the asset store. Content addressing makes Import idempotent:
// byte-identical audio always lands on one asset entry.
type Store struct {
	decoder Decoder
	blobs   *storage.BlobStore // optional; nil keeps everything in memory
	repo    MetadataRepo       // optional

	mu      sync.RWMutex
	pcm     map[model.AssetID]*audio.PCM
	meta    map[model.AssetID]*model.Asset
	encoded map[model.AssetID][]byte // retained when no blob store is wired
}

// NewStore builds an asset store. blobs and repo may be nil.
func NewStore(decoder Decoder, blobs *storage.BlobStore, repo MetadataRepo) *Store {
	return &Store{
		decoder: decoder,
		blobs:   blobs,
		repo:    repo,
		pcm:     make(map[model.AssetID]*audio.PCM),
		meta:    make(map[model.AssetID]*model.Asset),
		encoded: make(map[model.AssetID][]byte),
	}
}

// Digest returns the asset ID for encoded content: hex SHA-256.
func Digest(encoded []byte) model.AssetID {
	sum := sha256.Sum256(encoded)
	return model.AssetID(hex.EncodeToString(sum[:]))
}

// Import registers encoded audio content. Returns the asset metadata and
// whether the content was already known. A decode failure still returns the
// asset, flagged unusable, together with the decode error.
func (s *Store) Import(ctx context.Context, name string, encoded []byte) (*model.Asset, bool, error) {
	id := Digest(encoded)

	s.mu.RLock()
	existing, known := s.meta[id]
	s.mu.RUnlock()
	if known {
		logger.Debug("asset import deduplicated",
			logger.String("asset", string(id)),
			logger.String("name", name))
		return existing, true, nil
	}

	a := &model.Asset{
		ID:        id,
		Name:      name,
		SizeBytes: int64(len(encoded)),
		CreatedAt: time.Now(),
	}

	var decodeErr error
	pcm, err := s.decoder.Decode(ctx, encoded)
	if err != nil {
		a.Unusable = true
		decodeErr = model.NewError(model.ErrAssetDecode, "decode %s: %v", name, err)
		logger.Warn("asset decode failed, kept unusable",
			logger.String("asset", string(id)),
			logger.String("name", name),
			logger.ErrorField(err))
	} else {
		a.SampleRate = pcm.SampleRate
		a.Channels = pcm.Channels
		a.DurationFrames = pcm.Frames
	}

	if s.blobs != nil {
		if err := s.blobs.Put(ctx, string(id), encoded); err != nil {
			return nil, false, err
		}
	}

	s.mu.Lock()
	s.meta[id] = a
	if pcm != nil {
		s.pcm[id] = pcm
	}
	if s.blobs == nil {
		s.encoded[id] = encoded
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveAsset(a); err != nil {
			logger.Error("persist asset metadata",
				logger.String("asset", string(id)),
				logger.ErrorField(err))
		}
	}

	return a, false, decodeErr
}

// PCM resolves decoded samples for the graph compiler. Cache misses fall
// back to the blob store and decode lazily; this runs on the control
// context, never on the render path. Returns nil when the content cannot be
// produced, which compiles the clip to silence.
func (s *Store) PCM(id model.AssetID) *audio.PCM {
	s.mu.RLock()
	pcm := s.pcm[id]
	s.mu.RUnlock()
	if pcm != nil {
		return pcm
	}

	encoded := s.fetchEncoded(id)
	if encoded == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pcm, err := s.decoder.Decode(ctx, encoded)
	if err != nil {
		logger.Warn("lazy decode failed",
			logger.String("asset", string(id)),
			logger.ErrorField(err))
		return nil
	}

	s.mu.Lock()
	s.pcm[id] = pcm
	s.mu.Unlock()
	return pcm
}

func (s *Store) fetchEncoded(id model.AssetID) []byte {
	s.mu.RLock()
	encoded := s.encoded[id]
	s.mu.RUnlock()
	if encoded != nil || s.blobs == nil {
		return encoded
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	data, err := s.blobs.Get(ctx, string(id))
	if err != nil {
		logger.Warn("blob fetch failed",
			logger.String("asset", string(id)),
			logger.ErrorField(err))
		return nil
	}
	return data
}

// Cached reports whether PCM for the asset is resident, for tests and the
// inspection CLI.
func (s *Store) Cached(id model.AssetID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pcm[id] != nil
}
