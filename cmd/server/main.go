package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lexchat/internal/api"
	"lexchat/internal/auth"
	"lexchat/internal/blob"
	"lexchat/internal/chunker"
	"lexchat/internal/config"
	"lexchat/internal/core"
	"lexchat/internal/embedding"
	"lexchat/internal/store"
	"lexchat/internal/vectorindex"
)

func main() {
	cfg := config.Load()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	initFlag := flag.Bool("init", false, "Ensure the vector collection exists and exit")
	flag.Parse()

	index := vectorindex.New(vectorindex.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})

	if *initFlag {
		if err := index.EnsureCollection(context.Background()); err != nil {
			log.Fatalf("Vector collection init failed: %v", err)
		}
		log.Printf("Vector collection %q is ready. Exiting.", cfg.QdrantCollection)
		os.Exit(0)
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	blobs := blob.NewFS(cfg.BlobDir)

	tokenChunker, err := chunker.NewTokenChunker(chunker.DefaultChunkSizeTokens, chunker.DefaultOverlapTokens)
	if err != nil {
		log.Fatalf("Failed to initialize chunker: %v", err)
	}

	embedder, err := embedding.NewClient(embedding.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.EmbeddingModel,
	})
	if err != nil {
		log.Fatalf("Failed to initialize embedding client: %v", err)
	}

	llmService := core.NewLLMService(core.LLMConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ChatModel,
	})

	ingestService := core.NewIngestService(dbStore, blobs, tokenChunker, embedder, index, cfg.MaxUploadMB)
	chatService := core.NewChatService(embedder, index, llmService)

	authenticator := auth.New(cfg.JWTSecret)

	apiHandler := api.NewAPIHandler(authenticator, dbStore, chatService, ingestService, index)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // streamed completions can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
