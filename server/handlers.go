package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"mixdown/asset"
	"mixdown/auth"
	"mixdown/cache"
	"mixdown/command"
	"mixdown/config"
	"mixdown/logger"
	"mixdown/model"
)

// maxImportBytes bounds a single asset upload.
const maxImportBytes = 512 << 20

// APIHandler binds the HTTP surface to the engine and its collaborators.
type APIHandler struct {
	engine *command.Engine
	store  *asset.Store
	dedup  cache.DedupCache
	hub    *EventHub

	jwtSecret     string
	controlHash   string
	sessionTTL    time.Duration
	submitTimeout time.Duration
}

func NewAPIHandler(cfg *config.Config, engine *command.Engine, store *asset.Store,
	dedup cache.DedupCache, hub *EventHub) *APIHandler {

	return &APIHandler{
		engine:        engine,
		store:         store,
		dedup:         dedup,
		hub:           hub,
		jwtSecret:     cfg.JWTSecret,
		controlHash:   cfg.ControlSecretHash,
		sessionTTL:    time.Duration(cfg.SessionTTLMinutes) * time.Minute,
		submitTimeout: 10 * time.Second,
	}
}

func (h *APIHandler) validateToken(token string) (*auth.Claims, error) {
	claims, err := auth.ValidateToken(h.jwtSecret, token)
	if err != nil {
		return nil, model.NewError(model.ErrUnauthorized, "invalid session token")
	}
	return claims, nil
}

// Authenticated wraps a handler with bearer-token validation. When no JWT
// secret is configured the deployment is open and the check is skipped.
func (h *APIHandler) Authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.jwtSecret != "" {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header || token == "" {
				writeError(w, model.NewError(model.ErrUnauthorized, "missing bearer token"))
				return
			}
			if _, err := h.validateToken(token); err != nil {
				writeError(w, err)
				return
			}
		}
		next(w, r)
	}
}

// SessionHandler exchanges the control secret for a session token.
func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewError(model.ErrProtocol, "malformed session request: %v", err))
		return
	}
	if err := checkVersion(req.ProtocolVersion); err != nil {
		writeError(w, err)
		return
	}
	if req.ClientName == "" {
		writeError(w, model.NewError(model.ErrProtocol, "clientName is required"))
		return
	}
	if h.controlHash != "" && !auth.CheckSecret(req.Secret, h.controlHash) {
		logger.Warn("session refused", logger.String("client", req.ClientName))
		writeError(w, model.NewError(model.ErrUnauthorized, "control secret rejected"))
		return
	}

	token, err := auth.IssueToken(h.jwtSecret, req.ClientName, h.sessionTTL)
	if err != nil {
		writeError(w, model.NewError(model.ErrInternal, "issue token: %v", err))
		return
	}
	logger.Info("session opened", logger.String("client", req.ClientName))
	writeJSON(w, http.StatusOK, SessionResponse{Token: token})
}

// SubmitHandler applies one command. Duplicate request ids within the dedup
// window are refused so a retried mutation cannot apply twice.
func (h *APIHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewError(model.ErrProtocol, "malformed command request: %v", err))
		return
	}
	if err := checkVersion(req.ProtocolVersion); err != nil {
		writeError(w, err)
		return
	}
	if req.Command.Kind == "" {
		writeError(w, model.NewError(model.ErrProtocol, "command kind is required"))
		return
	}

	if req.RequestID != "" && h.dedup != nil {
		first, err := h.dedup.FirstSeen(r.Context(), req.RequestID)
		if err != nil {
			logger.Warn("dedup check failed, admitting request", logger.ErrorField(err))
		} else if !first {
			writeError(w, model.NewError(model.ErrDuplicate,
				"request %s was already submitted", req.RequestID))
			return
		}
	}

	ctx, cancel := submitContext(r, h.submitTimeout)
	defer cancel()
	res := h.engine.Submit(ctx, req.Command, req.ExpectedRevision)
	if res.Err != nil {
		// A rejected command was not applied, so its request id must not
		// burn a slot in the dedup window.
		if req.RequestID != "" && h.dedup != nil {
			if err := h.dedup.Forget(r.Context(), req.RequestID); err != nil {
				logger.Warn("dedup release failed",
					logger.String("requestId", req.RequestID),
					logger.ErrorField(err))
			}
		}
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Revision: res.Revision, Applied: res.Applied, Command: res.Command})
}

// UndoHandler steps the journal back. At the journal start this is a no-op
// acknowledged with applied=false.
func (h *APIHandler) UndoHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := submitContext(r, h.submitTimeout)
	defer cancel()
	res := h.engine.Undo(ctx)
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Revision: res.Revision, Applied: res.Applied, Command: res.Command})
}

// RedoHandler steps the journal forward.
func (h *APIHandler) RedoHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := submitContext(r, h.submitTimeout)
	defer cancel()
	res := h.engine.Redo(ctx)
	if res.Err != nil {
		writeError(w, res.Err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Revision: res.Revision, Applied: res.Applied, Command: res.Command})
}

// GetDocumentHandler returns the full current document.
func (h *APIHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Document())
}

// GetTracksHandler lists tracks in stable ID order.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	doc := h.engine.Document()
	tracks := make([]*model.Track, 0, len(doc.Tracks))
	for _, t := range doc.Tracks {
		tracks = append(tracks, t)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision": doc.Revision,
		"tracks":   tracks,
	})
}

// GetTrackHandler returns one track.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id := model.TrackID(mux.Vars(r)["id"])
	doc := h.engine.Document()
	t, ok := doc.Track(id)
	if !ok {
		writeError(w, model.NewError(model.ErrInvalidReference, "track %s does not exist", id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetTrackClipsHandler lists a track's clips in timeline order.
func (h *APIHandler) GetTrackClipsHandler(w http.ResponseWriter, r *http.Request) {
	id := model.TrackID(mux.Vars(r)["id"])
	doc := h.engine.Document()
	t, ok := doc.Track(id)
	if !ok {
		writeError(w, model.NewError(model.ErrInvalidReference, "track %s does not exist", id))
		return
	}
	clips := make([]*model.Clip, 0, len(t.ClipOrder))
	for _, cid := range t.ClipOrder {
		if c, ok := doc.Clip(cid); ok {
			clips = append(clips, c)
		}
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].StartFrame < clips[j].StartFrame })
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision": doc.Revision,
		"trackId":  id,
		"clips":    clips,
	})
}

// GetAssetsHandler lists registered asset metadata.
func (h *APIHandler) GetAssetsHandler(w http.ResponseWriter, r *http.Request) {
	doc := h.engine.Document()
	assets := make([]*model.Asset, 0, len(doc.Assets))
	for _, a := range doc.Assets {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision": doc.Revision,
		"assets":   assets,
	})
}

// GetTransportHandler returns the document transport state.
func (h *APIHandler) GetTransportHandler(w http.ResponseWriter, r *http.Request) {
	doc := h.engine.Document()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision":  doc.Revision,
		"transport": doc.Transport,
	})
}

// ImportAssetHandler accepts a multipart audio upload, stores it content
// addressed and registers the asset in the document. Re-uploading identical
// bytes lands on the existing asset.
func (h *APIHandler) ImportAssetHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, model.NewError(model.ErrProtocol, "malformed upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, model.NewError(model.ErrProtocol, "missing file field: %v", err))
		return
	}
	defer file.Close()

	encoded, err := io.ReadAll(io.LimitReader(file, maxImportBytes+1))
	if err != nil {
		writeError(w, model.NewError(model.ErrInternal, "read upload: %v", err))
		return
	}
	if len(encoded) > maxImportBytes {
		writeError(w, model.NewError(model.ErrConstraintViolation,
			"upload exceeds %d bytes", maxImportBytes))
		return
	}
	if len(encoded) == 0 {
		writeError(w, model.NewError(model.ErrConstraintViolation, "upload is empty"))
		return
	}

	a, existed, importErr := h.store.Import(r.Context(), header.Filename, encoded)
	if a == nil {
		writeError(w, importErr)
		return
	}

	registered := existed
	_, inDoc := h.engine.Document().Asset(a.ID)
	if !inDoc {
		ctx, cancel := submitContext(r, h.submitTimeout)
		defer cancel()
		res := h.engine.Submit(ctx, command.Command{
			Kind:    command.KindRegisterAsset,
			AssetID: a.ID,
			Name:    a.Name,
			Asset:   a,
		}, nil)
		if res.Err != nil && model.CodeOf(res.Err) != model.ErrConstraintViolation {
			writeError(w, res.Err)
			return
		}
		registered = res.Err == nil
	}

	if h.hub != nil {
		h.hub.PublishEvent(model.ChangeEvent{
			Topic:     model.TopicDocument,
			Kind:      model.EventAssetImported,
			Revision:  h.engine.Document().Revision,
			AssetID:   a.ID,
			Timestamp: time.Now().UnixMilli(),
		})
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"asset":        a,
		"deduplicated": existed,
		"registered":   registered,
		"unusable":     a.Unusable,
	})
}

func submitContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}
