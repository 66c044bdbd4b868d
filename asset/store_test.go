package asset

import (
	"context"
	"errors"
	"testing"

	"mixdown/audio"
	"mixdown/model"
)

type stubDecoder struct {
	pcm   *audio.PCM
	err   error
	calls int
}

func (d *stubDecoder) Decode(ctx context.Context, encoded []byte) (*audio.PCM, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.pcm, nil
}

func testPCM() *audio.PCM {
	return &audio.PCM{SampleRate: 48000, Channels: 2, Frames: 500, Data: make([]float32, 1000)}
}

func TestDigestIsStable(t *testing.T) {
	content := []byte("some audio bytes")
	if Digest(content) != Digest(append([]byte(nil), content...)) {
		t.Error("identical content produced different digests")
	}
	if Digest(content) == Digest([]byte("other audio bytes")) {
		t.Error("different content produced the same digest")
	}
	if len(Digest(content)) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(Digest(content)))
	}
}

func TestImportDeduplicates(t *testing.T) {
	dec := &stubDecoder{pcm: testPCM()}
	s := NewStore(dec, nil, nil)
	ctx := context.Background()
	content := []byte("same take twice")

	first, existed, err := s.Import(ctx, "take.wav", content)
	if err != nil {
		t.Fatalf("first import error: %v", err)
	}
	if existed {
		t.Error("first import reported as existing")
	}
	if first.DurationFrames != 500 || first.SampleRate != 48000 {
		t.Errorf("asset metadata = %+v", first)
	}

	second, existed, err := s.Import(ctx, "copy-of-take.wav", content)
	if err != nil {
		t.Fatalf("second import error: %v", err)
	}
	if !existed {
		t.Error("identical content not deduplicated")
	}
	if second.ID != first.ID {
		t.Errorf("dedup returned a different asset: %s vs %s", second.ID, first.ID)
	}
	if dec.calls != 1 {
		t.Errorf("decoder ran %d times, want 1", dec.calls)
	}
}

func TestImportDecodeFailureKeepsAssetUnusable(t *testing.T) {
	dec := &stubDecoder{err: errors.New("not audio")}
	s := NewStore(dec, nil, nil)

	a, existed, err := s.Import(context.Background(), "junk.bin", []byte("not audio at all"))
	if a == nil {
		t.Fatal("decode failure dropped the asset entirely")
	}
	if existed {
		t.Error("fresh content reported as existing")
	}
	if !a.Unusable {
		t.Error("undecodable asset not flagged unusable")
	}
	if err == nil {
		t.Fatal("decode failure not reported")
	}
	if code := model.CodeOf(err); code != model.ErrAssetDecode {
		t.Errorf("error code = %s, want %s", code, model.ErrAssetDecode)
	}

	if s.PCM(a.ID) != nil {
		t.Error("unusable asset resolved to PCM")
	}
}

func TestPCMDecodesLazily(t *testing.T) {
	dec := &stubDecoder{pcm: testPCM()}
	s := NewStore(dec, nil, nil)
	ctx := context.Background()

	a, _, err := s.Import(ctx, "take.wav", []byte("audio"))
	if err != nil {
		t.Fatalf("import error: %v", err)
	}
	if !s.Cached(a.ID) {
		t.Fatal("imported asset not cached")
	}

	// Drop the cache entry to force the lazy path through retained bytes.
	s.mu.Lock()
	delete(s.pcm, a.ID)
	s.mu.Unlock()

	if s.Cached(a.ID) {
		t.Fatal("cache eviction did not take")
	}
	pcm := s.PCM(a.ID)
	if pcm == nil {
		t.Fatal("lazy decode returned nil")
	}
	if pcm.Frames != 500 {
		t.Errorf("lazy PCM frames = %d, want 500", pcm.Frames)
	}
	if !s.Cached(a.ID) {
		t.Error("lazy decode did not repopulate the cache")
	}
}

func TestPCMUnknownAsset(t *testing.T) {
	s := NewStore(&stubDecoder{pcm: testPCM()}, nil, nil)
	if s.PCM("asset_unknown") != nil {
		t.Error("unknown asset resolved to PCM")
	}
}
