package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexchat/internal/vectorindex"
)

type fakeCompleter struct {
	calls    [][]ChatMessage
	response string
}

func (f *fakeCompleter) StreamChat(ctx context.Context, messages []ChatMessage) (<-chan Fragment, error) {
	f.calls = append(f.calls, messages)
	out := make(chan Fragment, len(f.response)+1)
	for _, r := range f.response {
		out <- Fragment{Content: string(r)}
	}
	close(out)
	return out, nil
}

func collect(t *testing.T, stream <-chan Fragment) string {
	t.Helper()
	var sb strings.Builder
	for f := range stream {
		require.NoError(t, f.Err)
		sb.WriteString(f.Content)
	}
	return sb.String()
}

func TestRespondRequiresMessages(t *testing.T) {
	s := NewChatService(&fakeEmbedder{}, newFakeIndex(), &fakeCompleter{})
	_, err := s.Respond(context.Background(), "owner-a", false, nil)
	assert.Error(t, err)
}

func TestGuestSingleQuestionStreams(t *testing.T) {
	llm := &fakeCompleter{response: "hi"}
	index := newFakeIndex()
	s := NewChatService(&fakeEmbedder{}, index, llm)

	stream, err := s.Respond(context.Background(), "", true, []ChatMessage{
		{Role: RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", collect(t, stream))
	assert.Empty(t, index.searched, "guests never get retrieval")
}

func TestGuestSecondQuestionRejected(t *testing.T) {
	llm := &fakeCompleter{}
	s := NewChatService(&fakeEmbedder{}, newFakeIndex(), llm)

	_, err := s.Respond(context.Background(), "", false, []ChatMessage{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "second"},
	})
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Empty(t, llm.calls, "no completion for an over-quota guest")
}

func TestAuthenticatedRetrievalPrependsContext(t *testing.T) {
	llm := &fakeCompleter{response: "answer"}
	index := newFakeIndex()
	index.results = []vectorindex.SearchResult{
		{DocumentID: "doc-1", Text: "payment terms are net 30", Score: 0.9},
	}
	s := NewChatService(&fakeEmbedder{}, index, llm)

	stream, err := s.Respond(context.Background(), "owner-a", true, []ChatMessage{
		{Role: RoleUser, Content: "what are the payment terms?"},
	})
	require.NoError(t, err)
	collect(t, stream)

	require.Equal(t, []string{"owner-a"}, index.searched, "search must be scoped to the caller")
	require.Len(t, llm.calls, 1)
	sent := llm.calls[0]
	require.Len(t, sent, 2)
	assert.Equal(t, RoleSystem, sent[0].Role)
	assert.Contains(t, sent[0].Content, "payment terms are net 30")
	assert.Equal(t, "what are the payment terms?", sent[1].Content)
}

func TestRetrievalSkippedWhenDisabled(t *testing.T) {
	llm := &fakeCompleter{response: "ok"}
	index := newFakeIndex()
	s := NewChatService(&fakeEmbedder{}, index, llm)

	stream, err := s.Respond(context.Background(), "owner-a", false, []ChatMessage{
		{Role: RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	collect(t, stream)

	assert.Empty(t, index.searched)
	require.Len(t, llm.calls, 1)
	assert.Len(t, llm.calls[0], 1, "no system message without retrieval")
}

func TestEmbeddingFailureDegradesToPlainChat(t *testing.T) {
	llm := &fakeCompleter{response: "still answering"}
	s := NewChatService(&fakeEmbedder{err: errors.New("provider down")}, newFakeIndex(), llm)

	stream, err := s.Respond(context.Background(), "owner-a", true, []ChatMessage{
		{Role: RoleUser, Content: "question"},
	})
	require.NoError(t, err, "retrieval failure must not abort the turn")
	assert.Equal(t, "still answering", collect(t, stream))

	require.Len(t, llm.calls, 1)
	assert.Len(t, llm.calls[0], 1, "no system message when retrieval failed")
}

func TestSearchFailureDegradesToPlainChat(t *testing.T) {
	llm := &fakeCompleter{response: "ok"}
	index := newFakeIndex()
	index.searchErr = errors.New("qdrant unreachable")
	s := NewChatService(&fakeEmbedder{}, index, llm)

	stream, err := s.Respond(context.Background(), "owner-a", true, []ChatMessage{
		{Role: RoleUser, Content: "question"},
	})
	require.NoError(t, err)
	collect(t, stream)
	assert.Len(t, llm.calls[0], 1)
}

func TestRetrievalUsesLatestUserMessage(t *testing.T) {
	assert.Equal(t, "newest", latestUserMessage([]ChatMessage{
		{Role: RoleUser, Content: "oldest"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "newest"},
	}))
	assert.Equal(t, "", latestUserMessage([]ChatMessage{{Role: RoleAssistant, Content: "reply"}}))
}
