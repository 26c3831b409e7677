package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lexchat/internal/auth"
	"lexchat/internal/core"
	"lexchat/internal/embedding"
	"lexchat/internal/store"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

type APIHandler struct {
	auth          *auth.Auth
	users         *store.SQLiteStore
	chatService   *core.ChatService
	ingestService *core.IngestService
	index         core.VectorIndex
}

func NewAPIHandler(a *auth.Auth, users *store.SQLiteStore, cs *core.ChatService, is *core.IngestService, index core.VectorIndex) *APIHandler {
	return &APIHandler{auth: a, users: users, chatService: cs, ingestService: is, index: index}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ownerFromContext returns the resolved owner id, or "" for guests.
func ownerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerIDKey).(string); ok {
		return v
	}
	return ""
}

// RequireAuthMiddleware resolves the caller's identity from a Bearer token
// and rejects requests without one.
func (h *APIHandler) RequireAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := h.resolveIdentity(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if ownerID == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, ownerID)))
	})
}

// OptionalAuthMiddleware resolves identity when a token is present and lets
// guests through with no owner id. An invalid token is still rejected.
func (h *APIHandler) OptionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := h.resolveIdentity(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, ownerID)))
	})
}

func (h *APIHandler) resolveIdentity(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	externalUserID, err := h.auth.ValidateJWT(tokenString)
	if err != nil {
		return "", errors.New("Invalid token")
	}

	user, err := h.users.GetUserByExternalID(externalUserID)
	if err != nil {
		log.Printf("Error resolving identity for user %s: %v", externalUserID, err)
		return "", errors.New("Failed to process user identity")
	}
	if user == nil {
		return "", errors.New("User not found")
	}
	return user.ExternalUserID, nil
}

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "User ID and password are required")
		return
	}

	existing, err := h.users.GetUserByExternalID(req.UserID)
	if err != nil {
		log.Printf("Error checking user %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user, err := h.users.CreateUser(req.UserID, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "User ID and password are required")
		return
	}

	user, err := h.users.GetUserByExternalID(req.UserID)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.UserID, err)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.auth.GenerateJWT(user.ExternalUserID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandler) InitHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.index.EnsureCollection(r.Context()); err != nil {
		log.Printf("Collection init error: %v", err)
		writeError(w, http.StatusInternalServerError, "Vector index init failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("Error reading upload for user %s: %v", ownerID, err)
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}

	result, err := h.ingestService.Ingest(r.Context(), ownerID, header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidUpload),
			errors.Is(err, core.ErrNoExtractableText),
			errors.Is(err, core.ErrNoChunksProduced):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, embedding.ErrEmbeddingFailure):
			log.Printf("Upload failed for user %s: %v", ownerID, err)
			writeError(w, http.StatusBadGateway, "Failed to embed document")
		default:
			log.Printf("Upload failed for user %s: %v", ownerID, err)
			writeError(w, http.StatusInternalServerError, "Failed to process document")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())

	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}

	docs, err := h.ingestService.List(ownerID, limit, offset)
	if err != nil {
		log.Printf("Error listing documents for user %s: %v", ownerID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (h *APIHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	documentID := chi.URLParam(r, "documentID")

	doc, err := h.ingestService.Get(ownerID, documentID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		log.Printf("Error getting document %s for user %s: %v", documentID, ownerID, err)
		writeError(w, http.StatusInternalServerError, "Failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *APIHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())
	documentID := chi.URLParam(r, "documentID")

	if err := h.ingestService.Delete(r.Context(), ownerID, documentID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		log.Printf("Error deleting document %s for user %s: %v", documentID, ownerID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": documentID})
}

type ChatRequest struct {
	Messages []core.ChatMessage `json:"messages"`
	UseRAG   bool               `json:"useRag"`
}

// ChatHandler streams the model reply as data: {"content": ...} fragments
// terminated by data: [DONE]. Errors before the first fragment are plain
// JSON with a non-200 status.
func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerFromContext(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Messages are required")
		return
	}

	stream, err := h.chatService.Respond(r.Context(), ownerID, req.UseRAG, req.Messages)
	if err != nil {
		if errors.Is(err, core.ErrLimitExceeded) {
			writeError(w, http.StatusForbidden, "Guest sessions allow a single question. Please register to continue.")
			return
		}
		log.Printf("Chat failed for user %q: %v", ownerID, err)
		writeError(w, http.StatusInternalServerError, "Chat failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for fragment := range stream {
		if fragment.Err != nil {
			log.Printf("Chat stream aborted for user %q: %v", ownerID, fragment.Err)
			break
		}
		payload, err := json.Marshal(map[string]string{"content": fragment.Content})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
