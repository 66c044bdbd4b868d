// Package server exposes the engine over HTTP and websocket: session
// handshake, command submission with retry deduplication, document queries,
// asset upload and the subscribed event streams.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"mixdown/asset"
	"mixdown/cache"
	"mixdown/command"
	"mixdown/config"
	"mixdown/db"
	"mixdown/graph"
	"mixdown/logger"
	"mixdown/model"
	"mixdown/render"
	"mixdown/repository"
	"mixdown/storage"
)

// Start boots the full engine and serves until SIGINT/SIGTERM. External
// services (MySQL, Redis, MinIO) are optional at runtime: when one is not
// reachable the engine runs degraded on its in-memory fallbacks.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	logger.Info("starting mixdown engine",
		logger.String("addr", cfg.ListenAddr),
		logger.Int("sampleRate", cfg.SampleRate),
		logger.Int("quantumFrames", cfg.QuantumFrames),
		logger.Int("channels", cfg.Channels))

	// Durable storage. A missing database disables persistence, not the engine.
	var repo repository.DocumentRepository
	var persister *repository.AsyncPersister
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Warn("mysql unavailable, running without persistence", logger.ErrorField(err))
	} else {
		defer db.CloseGormDB()
		if err := repository.Migrate(); err != nil {
			logger.Fatal("database migration failed", logger.ErrorField(err))
		}
		repo = repository.NewGormDocumentRepository()
		persister = repository.NewAsyncPersister(repo)
		defer persister.Close()
	}

	dedupWindow := time.Duration(cfg.DedupWindowSeconds) * time.Second
	var dedup cache.DedupCache
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("redis unavailable, using in-memory request dedup", logger.ErrorField(err))
		dedup = cache.NewMemoryDedupCache(dedupWindow)
	} else {
		defer db.CloseRedis()
		dedup = cache.NewRedisDedupCache(dedupWindow)
	}

	blobs, err := storageBlobStore(cfg)
	if err != nil {
		logger.Warn("minio unavailable, keeping audio content in memory", logger.ErrorField(err))
	}

	decoder := asset.NewFFmpegDecoder(cfg.FFmpegPath, cfg.SampleRate, cfg.Channels)
	store := asset.NewStore(decoder, blobs, repo)

	doc := loadDocument(repo)

	hub := NewEventHub()
	go hub.Run()

	params := graph.Params{
		SampleRate:    cfg.SampleRate,
		QuantumFrames: cfg.QuantumFrames,
		Channels:      cfg.Channels,
	}
	var persist command.Persister
	if persister != nil {
		persist = persister
	}
	engine, err := command.NewEngine(doc, params, store.PCM, hub.PublishEvent, persist)
	if err != nil {
		logger.Fatal("initial document failed to compile", logger.ErrorField(err))
	}
	go engine.Run()
	defer engine.Stop()

	sched := render.NewScheduler(engine.Snapshots(), cfg.SampleRate, cfg.QuantumFrames, cfg.Channels)

	var transport render.Transport
	if t, err := render.NewOtoTransport(sched, cfg.SampleRate, cfg.Channels, cfg.QuantumFrames); err != nil {
		logger.Warn("audio device unavailable, running headless", logger.ErrorField(err))
	} else {
		transport = t
		if err := transport.Start(); err != nil {
			logger.Warn("audio transport start failed", logger.ErrorField(err))
		} else {
			defer transport.Stop()
		}
	}

	pumpCtx, pumpCancel := context.WithCancel(context.Background())
	defer pumpCancel()
	go runTelemetryPump(pumpCtx, sched, hub)

	if cfg.ImportWatchDir != "" {
		startWatcher(pumpCtx, cfg.ImportWatchDir, store, engine)
	}

	handler := NewAPIHandler(cfg, engine, store, dedup, hub)
	router := newRouter(handler)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("http server listening", logger.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", logger.ErrorField(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", logger.ErrorField(err))
	}
}

func newRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/session", h.SessionHandler).Methods("POST")

	api.HandleFunc("/command", h.Authenticated(h.SubmitHandler)).Methods("POST")
	api.HandleFunc("/undo", h.Authenticated(h.UndoHandler)).Methods("POST")
	api.HandleFunc("/redo", h.Authenticated(h.RedoHandler)).Methods("POST")

	api.HandleFunc("/document", h.Authenticated(h.GetDocumentHandler)).Methods("GET")
	api.HandleFunc("/transport", h.Authenticated(h.GetTransportHandler)).Methods("GET")
	api.HandleFunc("/tracks", h.Authenticated(h.GetTracksHandler)).Methods("GET")
	api.HandleFunc("/tracks/{id}", h.Authenticated(h.GetTrackHandler)).Methods("GET")
	api.HandleFunc("/tracks/{id}/clips", h.Authenticated(h.GetTrackClipsHandler)).Methods("GET")
	api.HandleFunc("/assets", h.Authenticated(h.GetAssetsHandler)).Methods("GET")
	api.HandleFunc("/assets/import", h.Authenticated(h.ImportAssetHandler)).Methods("POST")

	router.HandleFunc("/ws/events", h.EventsHandler)

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func storageBlobStore(cfg *config.Config) (*storage.BlobStore, error) {
	if cfg.MinioEndpoint == "" {
		return nil, nil
	}
	return storage.NewBlobStore(cfg)
}

func loadDocument(repo repository.DocumentRepository) *model.Document {
	if repo == nil {
		return model.NewDocument()
	}
	doc, err := repo.LoadLatest()
	if err != nil {
		logger.Error("load persisted document", logger.ErrorField(err))
		return model.NewDocument()
	}
	if doc == nil {
		logger.Info("no persisted document, starting empty")
		return model.NewDocument()
	}
	logger.Info("resumed persisted document", logger.Uint64("revision", doc.Revision))
	return doc
}

func startWatcher(ctx context.Context, dir string, store *asset.Store, engine *command.Engine) {
	watcher, err := asset.NewWatcher(dir, store, func(a *model.Asset, existed bool) {
		if existed {
			return
		}
		submitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		res := engine.Submit(submitCtx, command.Command{
			Kind:    command.KindRegisterAsset,
			AssetID: a.ID,
			Name:    a.Name,
			Asset:   a,
		}, nil)
		if res.Err != nil {
			logger.Error("register watched asset",
				logger.String("asset", string(a.ID)),
				logger.ErrorField(res.Err))
		}
	})
	if err != nil {
		logger.Warn("import watcher unavailable",
			logger.String("dir", dir),
			logger.ErrorField(err))
		return
	}
	go watcher.Run(ctx)
	logger.Info("watching import folder", logger.String("dir", dir))
}
