package core

import (
	"context"
	"errors"
	"log"

	"lexchat/internal/rag"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	// searchLimit is how many nearest chunks one chat turn retrieves.
	searchLimit = 8
	// guestUserTurnLimit caps unauthenticated sessions at a single question.
	guestUserTurnLimit = 1
)

// ChatMessage is one role-tagged turn of the client-held conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fragment is one increment of a streamed completion. A fragment with a
// non-nil Err terminates the stream.
type Fragment struct {
	Content string
	Err     error
}

// ChatService runs one chat turn: optional retrieval over the caller's own
// documents, then a streamed completion. Retrieval is best-effort enrichment;
// its failures degrade to ungrounded chat instead of aborting the turn.
type ChatService struct {
	embedder         Embedder
	index            VectorIndex
	llm              Completer
	maxContextTokens int
}

func NewChatService(embedder Embedder, index VectorIndex, llm Completer) *ChatService {
	return &ChatService{
		embedder:         embedder,
		index:            index,
		llm:              llm,
		maxContextTokens: rag.DefaultMaxContextTokens,
	}
}

// Respond streams the model's reply for the given conversation. ownerID is
// empty for guests: they get no retrieval and at most one user message per
// request. Authenticated callers get retrieval when useRAG is set.
func (s *ChatService) Respond(ctx context.Context, ownerID string, useRAG bool, messages []ChatMessage) (<-chan Fragment, error) {
	if len(messages) == 0 {
		return nil, errors.New("messages are required")
	}

	if ownerID == "" {
		if countUserMessages(messages) > guestUserTurnLimit {
			return nil, ErrLimitExceeded
		}
	} else if useRAG {
		if system := s.retrieveContext(ctx, ownerID, messages); system != "" {
			messages = append([]ChatMessage{{Role: RoleSystem, Content: system}}, messages...)
		}
	}

	return s.llm.StreamChat(ctx, messages)
}

// retrieveContext embeds the latest user message, searches the caller's
// chunks and assembles the grounding context. Any failure returns "" so the
// chat proceeds without context.
func (s *ChatService) retrieveContext(ctx context.Context, ownerID string, messages []ChatMessage) string {
	query := latestUserMessage(messages)
	if query == "" {
		return ""
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("Retrieval degraded to no-context chat: query embedding failed: %v", err)
		return ""
	}
	results, err := s.index.Search(ctx, ownerID, vector, searchLimit)
	if err != nil {
		log.Printf("Retrieval degraded to no-context chat: search failed: %v", err)
		return ""
	}

	return rag.SystemMessage(rag.BuildContext(results, s.maxContextTokens))
}

func latestUserMessage(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func countUserMessages(messages []ChatMessage) int {
	n := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
