package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"catalogstage/internal/extract"
	apphttp "catalogstage/internal/http"
	"catalogstage/internal/httpx"
	"catalogstage/internal/platform/spotify"
	"catalogstage/internal/staging"

	"github.com/joho/godotenv"
)

const (
	upstreamRPS        = 10
	upstreamMaxRetries = 3
)

func main() {
	_ = godotenv.Load(".env.local")

	serverAddress := getEnv("APP_ADDR", ":8080")
	clientID := mustGetEnv("SPOTIFY_CLIENT_ID")
	clientSecret := mustGetEnv("SPOTIFY_CLIENT_SECRET")

	objectStore := mustOpenStore(staging.MinioConfig{
		Endpoint:  getEnv("STAGING_ENDPOINT", "localhost:9000"),
		AccessKey: getEnv("STAGING_ACCESS_KEY", "minioadmin"),
		SecretKey: getEnv("STAGING_SECRET_KEY", "minioadmin"),
		Bucket:    mustGetEnv("STAGING_BUCKET"),
		UseSSL:    getEnv("STAGING_USE_SSL", "false") == "true",
	})

	tokens := spotify.NewTokenSource(clientID, clientSecret)
	client := spotify.NewClient(tokens, upstreamRPS, upstreamMaxRetries)
	extractor := extract.NewService(client)
	writer := staging.NewWriter(objectStore)

	artistHandler := apphttp.NewArtistHandler(extractor, writer)

	router := http.NewServeMux()

	router.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Artist catalog staging service. Usage: /artist/{name}/store"))
	})
	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.HandleFunc("GET /artist/{name}/store", artistHandler.Store)

	handler := httpx.RequestIDMiddleware(httpx.AccessLogMiddleware(httpx.RecoveryMiddleware(router)))

	httpServer := &http.Server{
		Addr:        serverAddress,
		Handler:     handler,
		ReadTimeout: 5 * time.Second,
		// A run fans out over every album of the artist; give it room.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting server on %s", serverAddress)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustGetEnv(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	log.Fatalf("missing required environment variable: %s", key)
	return ""
}

func mustOpenStore(cfg staging.MinioConfig) *staging.MinioStore {
	store, err := staging.NewMinioStore(cfg)
	if err != nil {
		log.Fatalf("cannot create object store client: %v", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		log.Fatalf("cannot reach object store bucket %q: %v", cfg.Bucket, err)
	}
	log.Println("object store connection OK")
	return store
}
