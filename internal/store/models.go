package store

import "time"

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

// Document is one registered upload. OwnerID is the external user id; every
// read and delete in the registry is filtered by it.
type Document struct {
	ID          string    `json:"id"` // UUID, shared with the vector index point ids
	OwnerID     string    `json:"-"`
	Name        string    `json:"name"`
	StoragePath string    `json:"storage_path,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
}
