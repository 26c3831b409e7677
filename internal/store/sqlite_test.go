package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestDocument(t *testing.T, s *SQLiteStore, id, ownerID string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, s.InsertDocument(&Document{
		ID:          id,
		OwnerID:     ownerID,
		Name:        id + ".txt",
		StoragePath: ownerID + "/" + id + "/" + id + ".txt",
		ChunkCount:  3,
		CreatedAt:   createdAt,
	}))
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)

	missing, err := s.GetUserByExternalID("alice")
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := s.CreateUser("alice", "hashed-secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", created.ExternalUserID)
	assert.Equal(t, "hashed-secret", created.PasswordHash)
	assert.NotZero(t, created.ID)

	found, err := s.GetUserByExternalID("alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
}

func TestCreateUserDuplicateExternalID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser("alice", "hash1")
	require.NoError(t, err)

	_, err = s.CreateUser("alice", "hash2")
	assert.Error(t, err, "external_user_id is unique")
}

func TestGetDocumentScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	insertTestDocument(t, s, "doc-1", "owner-a", time.Now())

	doc, err := s.GetDocument("doc-1", "owner-a")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "doc-1.txt", doc.Name)
	assert.Equal(t, 3, doc.ChunkCount)

	other, err := s.GetDocument("doc-1", "owner-b")
	require.NoError(t, err)
	assert.Nil(t, other, "another owner must not see the document")
}

func TestListDocumentsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		insertTestDocument(t, s, fmt.Sprintf("doc-%d", i), "owner-a", base.Add(time.Duration(i)*time.Minute))
	}
	insertTestDocument(t, s, "doc-other", "owner-b", base)

	docs, err := s.ListDocuments("owner-a", 50, 0)
	require.NoError(t, err)
	require.Len(t, docs, 5)
	assert.Equal(t, "doc-4", docs[0].ID)
	assert.Equal(t, "doc-0", docs[4].ID)
}

func TestListDocumentsPagination(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		insertTestDocument(t, s, fmt.Sprintf("doc-%d", i), "owner-a", base.Add(time.Duration(i)*time.Minute))
	}

	page, err := s.ListDocuments("owner-a", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "doc-2", page[0].ID)
	assert.Equal(t, "doc-1", page[1].ID)

	empty, err := s.ListDocuments("owner-c", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteDocumentScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	insertTestDocument(t, s, "doc-1", "owner-a", time.Now())

	err := s.DeleteDocument("doc-1", "owner-b")
	assert.Error(t, err, "deleting another owner's document must fail")

	still, err := s.GetDocument("doc-1", "owner-a")
	require.NoError(t, err)
	assert.NotNil(t, still)

	require.NoError(t, s.DeleteDocument("doc-1", "owner-a"))
	gone, err := s.GetDocument("doc-1", "owner-a")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
