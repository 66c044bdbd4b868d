package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mixdown/asset"
	"mixdown/audio"
	"mixdown/auth"
	"mixdown/cache"
	"mixdown/command"
	"mixdown/config"
	"mixdown/graph"
	"mixdown/model"
)

type fixedDecoder struct{}

func (fixedDecoder) Decode(_ context.Context, _ []byte) (*audio.PCM, error) {
	return &audio.PCM{SampleRate: 48000, Channels: 2, Frames: 1000, Data: make([]float32, 2000)}, nil
}

type testEnv struct {
	handler *APIHandler
	engine  *command.Engine
	router  http.Handler
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{SessionTTLMinutes: 60, DedupWindowSeconds: 300}
	}

	store := asset.NewStore(fixedDecoder{}, nil, nil)
	hub := NewEventHub()
	go hub.Run()

	params := graph.Params{SampleRate: 48000, QuantumFrames: 64, Channels: 2}
	engine, err := command.NewEngine(model.NewDocument(), params, store.PCM, hub.PublishEvent, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	go engine.Run()
	t.Cleanup(engine.Stop)

	dedup := cache.NewMemoryDedupCache(time.Duration(cfg.DedupWindowSeconds) * time.Second)
	handler := NewAPIHandler(cfg, engine, store, dedup, hub)
	return &testEnv{handler: handler, engine: engine, router: newRouter(handler)}
}

func (env *testEnv) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeSubmit(t *testing.T, w *httptest.ResponseRecorder) SubmitResponse {
	t.Helper()
	var resp SubmitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorPayload {
	t.Helper()
	var payload ErrorPayload
	if err := json.NewDecoder(w.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload
}

func TestSubmitAppliesCommand(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.postJSON(t, "/api/command", SubmitRequest{
		ProtocolVersion: ProtocolVersion,
		Command:         command.Command{Kind: command.KindCreateTrack, Name: "Drums"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	resp := decodeSubmit(t, w)
	if resp.Revision != 1 || !resp.Applied {
		t.Errorf("response = %+v, want applied at revision 1", resp)
	}
	if resp.Command == nil || resp.Command.TrackID == "" {
		t.Error("response does not carry the assigned track ID")
	}
}

func TestSubmitRejectsWrongProtocolVersion(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.postJSON(t, "/api/command", SubmitRequest{
		ProtocolVersion: 99,
		Command:         command.Command{Kind: command.KindCreateTrack},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if payload := decodeError(t, w); payload.Code != model.ErrIncompatibleVersion {
		t.Errorf("error code = %s, want %s", payload.Code, model.ErrIncompatibleVersion)
	}
	if got := env.engine.Document().Revision; got != 0 {
		t.Errorf("rejected request changed revision to %d", got)
	}
}

func TestSubmitDeduplicatesRetries(t *testing.T) {
	env := newTestEnv(t, nil)

	req := SubmitRequest{
		ProtocolVersion: ProtocolVersion,
		RequestID:       "req-abc",
		Command:         command.Command{Kind: command.KindCreateTrack, Name: "Drums"},
	}
	if w := env.postJSON(t, "/api/command", req); w.Code != http.StatusOK {
		t.Fatalf("first submit status = %d", w.Code)
	}

	w := env.postJSON(t, "/api/command", req)
	if w.Code != http.StatusConflict {
		t.Fatalf("retry status = %d, want 409", w.Code)
	}
	if payload := decodeError(t, w); payload.Code != model.ErrDuplicate {
		t.Errorf("error code = %s, want %s", payload.Code, model.ErrDuplicate)
	}
	if got := env.engine.Document().Revision; got != 1 {
		t.Errorf("revision = %d, the retry must not apply twice", got)
	}
}

func TestSubmitRejectedCommandFreesRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	// References a track that does not exist, so the command is rejected.
	bad := SubmitRequest{
		ProtocolVersion: ProtocolVersion,
		RequestID:       "req-retry",
		Command:         command.Command{Kind: command.KindSetGain, TrackID: "trk_ghost", Value: -6},
	}
	w := env.postJSON(t, "/api/command", bad)
	if w.Code != http.StatusNotFound {
		t.Fatalf("first attempt status = %d, want 404", w.Code)
	}

	// The same request id must be retryable, not reported as a duplicate.
	w = env.postJSON(t, "/api/command", bad)
	if w.Code != http.StatusNotFound {
		t.Fatalf("retry status = %d, want 404", w.Code)
	}
	if payload := decodeError(t, w); payload.Code != model.ErrInvalidReference {
		t.Errorf("retry error code = %s, want %s", payload.Code, model.ErrInvalidReference)
	}

	// Once the command applies, the id is spent.
	good := SubmitRequest{
		ProtocolVersion: ProtocolVersion,
		RequestID:       "req-retry",
		Command:         command.Command{Kind: command.KindCreateTrack, Name: "Drums"},
	}
	if w := env.postJSON(t, "/api/command", good); w.Code != http.StatusOK {
		t.Fatalf("good submit status = %d", w.Code)
	}
	if w := env.postJSON(t, "/api/command", good); w.Code != http.StatusConflict {
		t.Errorf("retry of applied command status = %d, want 409", w.Code)
	}
}

func TestSubmitConflictOnStaleRevision(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.postJSON(t, "/api/command", SubmitRequest{
		ProtocolVersion: ProtocolVersion,
		Command:         command.Command{Kind: command.KindCreateTrack, Name: "One"},
	}); w.Code != http.StatusOK {
		t.Fatalf("setup submit status = %d", w.Code)
	}

	stale := uint64(0)
	w := env.postJSON(t, "/api/command", SubmitRequest{
		ProtocolVersion:  ProtocolVersion,
		ExpectedRevision: &stale,
		Command:          command.Command{Kind: command.KindCreateTrack, Name: "Two"},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if payload := decodeError(t, w); payload.Code != model.ErrConflict {
		t.Errorf("error code = %s, want %s", payload.Code, model.ErrConflict)
	}
}

func TestUndoAtJournalStart(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.postJSON(t, "/api/undo", struct{}{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeSubmit(t, w)
	if resp.Applied {
		t.Error("undo on an empty journal reported applied")
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	env.postJSON(t, "/api/command", SubmitRequest{
		ProtocolVersion: ProtocolVersion,
		Command:         command.Command{Kind: command.KindCreateTrack, Name: "One"},
	})

	undo := decodeSubmit(t, env.postJSON(t, "/api/undo", struct{}{}))
	if !undo.Applied || undo.Revision != 0 {
		t.Errorf("undo = %+v, want applied at revision 0", undo)
	}
	redo := decodeSubmit(t, env.postJSON(t, "/api/redo", struct{}{}))
	if !redo.Applied || redo.Revision != 1 {
		t.Errorf("redo = %+v, want applied at revision 1", redo)
	}
}

func TestGetTrackNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.get(t, "/api/tracks/trk_missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if payload := decodeError(t, w); payload.Code != model.ErrInvalidReference {
		t.Errorf("error code = %s, want %s", payload.Code, model.ErrInvalidReference)
	}
}

func TestGetTracksListsMaster(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.get(t, "/api/tracks")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Revision uint64         `json:"revision"`
		Tracks   []*model.Track `json:"tracks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tracks) != 1 || resp.Tracks[0].ID != model.MasterTrackID {
		t.Errorf("tracks = %+v, want just the master bus", resp.Tracks)
	}
}

func TestSessionAndBearerAuth(t *testing.T) {
	hash, err := auth.HashSecret("passphrase")
	if err != nil {
		t.Fatalf("HashSecret error: %v", err)
	}
	cfg := &config.Config{
		JWTSecret:          "signing-secret",
		ControlSecretHash:  hash,
		SessionTTLMinutes:  60,
		DedupWindowSeconds: 300,
	}
	env := newTestEnv(t, cfg)

	// No token: refused.
	if w := env.get(t, "/api/document"); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	// Wrong passphrase: refused.
	w := env.postJSON(t, "/api/session", SessionRequest{
		ProtocolVersion: ProtocolVersion, ClientName: "ui", Secret: "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad secret status = %d, want 401", w.Code)
	}

	// Correct passphrase: token issued and accepted.
	w = env.postJSON(t, "/api/session", SessionRequest{
		ProtocolVersion: ProtocolVersion, ClientName: "ui", Secret: "passphrase",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d, body = %s", w.Code, w.Body)
	}
	var session SessionResponse
	if err := json.NewDecoder(w.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/document", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestImportAssetRegistersAndDeduplicates(t *testing.T) {
	env := newTestEnv(t, nil)

	upload := func(t *testing.T, content []byte) *httptest.ResponseRecorder {
		t.Helper()
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "take.wav")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
		mw.Close()

		req := httptest.NewRequest("POST", "/api/assets/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	content := []byte("pretend this is a wav file")

	w := upload(t, content)
	if w.Code != http.StatusCreated {
		t.Fatalf("first upload status = %d, body = %s", w.Code, w.Body)
	}
	var first struct {
		Asset        *model.Asset `json:"asset"`
		Deduplicated bool         `json:"deduplicated"`
		Registered   bool         `json:"registered"`
	}
	if err := json.NewDecoder(w.Body).Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Deduplicated || !first.Registered {
		t.Errorf("first upload = %+v, want fresh and registered", first)
	}
	if _, ok := env.engine.Document().Asset(first.Asset.ID); !ok {
		t.Error("imported asset missing from the document")
	}

	w = upload(t, content)
	if w.Code != http.StatusOK {
		t.Fatalf("second upload status = %d, want 200", w.Code)
	}
	var second struct {
		Asset        *model.Asset `json:"asset"`
		Deduplicated bool         `json:"deduplicated"`
	}
	if err := json.NewDecoder(w.Body).Decode(&second); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !second.Deduplicated {
		t.Error("identical upload not deduplicated")
	}
	if second.Asset.ID != first.Asset.ID {
		t.Errorf("dedup produced a different asset: %s vs %s", second.Asset.ID, first.Asset.ID)
	}
	if got := len(env.engine.Document().Assets); got != 1 {
		t.Errorf("document holds %d assets, want 1", got)
	}
}

func TestEventsHandlerRejectsBadTopics(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.get(t, fmt.Sprintf("/ws/events?v=%d&topics=nonsense", ProtocolVersion))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if payload := decodeError(t, w); payload.Code != model.ErrProtocol {
		t.Errorf("error code = %s, want %s", payload.Code, model.ErrProtocol)
	}
}

func TestEventsHandlerRejectsWrongVersion(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.get(t, "/ws/events?v=42&topics=document")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if payload := decodeError(t, w); payload.Code != model.ErrIncompatibleVersion {
		t.Errorf("error code = %s, want %s", payload.Code, model.ErrIncompatibleVersion)
	}
}
