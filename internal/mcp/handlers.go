// ABOUTME: MCP tool handler implementations for the distill server
// ABOUTME: Translates tool arguments into orchestrator calls and JSON results
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/harper/distill/internal/core"
	"github.com/harper/distill/internal/extract"
	"github.com/harper/distill/internal/models"
	"github.com/harper/distill/internal/storage"
)

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	orch        *core.Orchestrator
	catalog     storage.LessonCatalog
	defaultUser string
	logger      *log.Logger
	inflight    sync.WaitGroup // Track running tool calls for clean shutdown
}

// NewHandlers creates handlers over an orchestrator
func NewHandlers(orch *core.Orchestrator, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{
		orch:        orch,
		catalog:     opts.Catalog,
		defaultUser: opts.DefaultUser,
		logger:      logger,
	}
}

// Shutdown waits for running tool calls to finish
func (h *Handlers) Shutdown() {
	h.inflight.Wait()
}

// IngestResponse is the ingest_document result
type IngestResponse struct {
	LessonID       string             `json:"lesson_id"`
	Title          string             `json:"title"`
	Framework      models.Framework   `json:"framework"`
	Deduplicated   bool               `json:"deduplicated"`
	ReadingMinutes int                `json:"reading_minutes"`
	Bullets        []string           `json:"bullets"`
	Flashcards     []models.Flashcard `json:"flashcards"`
	Quiz           []models.QuizItem  `json:"quiz"`
	ConceptMap     *models.ConceptMap `json:"concept_map,omitempty"`
	Fallback       bool               `json:"fallback"`
}

// IngestDocument handles the ingest_document tool
func (h *Handlers) IngestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.inflight.Add(1)
	defer h.inflight.Done()

	text := request.GetString("text", "")
	title := request.GetString("title", "")
	source := ""
	if strings.TrimSpace(text) == "" {
		path := request.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("either text or path is required"), nil
		}
		extracted, err := extract.File(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read document: %v", err)), nil
		}
		text, source = extracted, path
	}

	res, err := h.orch.Ingest(ctx, core.IngestRequest{
		Text:   text,
		UserID: h.user(request),
		Title:  title,
		Source: source,
		Level:  levelArg(request),
	})
	if err != nil {
		return toolError("ingest failed", err), nil
	}

	rec := res.Lesson
	return jsonResult(IngestResponse{
		LessonID:       res.ID,
		Title:          rec.Title,
		Framework:      rec.Framework,
		Deduplicated:   res.Deduplicated,
		ReadingMinutes: rec.ReadingMinutes,
		Bullets:        rec.Bullets,
		Flashcards:     rec.Flashcards,
		Quiz:           rec.Quiz,
		ConceptMap:     rec.ConceptMap,
		Fallback:       rec.Fallback,
	})
}

// QueryLesson handles the query_lesson tool
func (h *Handlers) QueryLesson(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.inflight.Add(1)
	defer h.inflight.Done()

	req := core.QueryRequest{
		LessonID:       request.GetString("lesson_id", ""),
		ConversationID: request.GetString("conversation_id", ""),
		Topic:          request.GetString("topic", ""),
		Level:          levelArg(request),
	}
	if req.LessonID == "" && req.ConversationID == "" {
		return mcp.NewToolResultError("lesson_id or conversation_id is required"), nil
	}
	if raw := request.GetString("kind", ""); raw != "" {
		kind, ok := core.KindForAction(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q", raw)), nil
		}
		req.Kind = kind
	}

	content, err := h.orch.Query(ctx, req)
	if err != nil {
		return toolError("query failed", err), nil
	}

	return jsonResult(map[string]interface{}{
		"content": content,
		"text":    core.RenderText(content),
	})
}

// ClassifyIntent handles the classify_intent tool
func (h *Handlers) ClassifyIntent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}
	rc := models.RouteContext{DocumentAttached: request.GetBool("document_attached", false)}

	cls := h.orch.ClassifyIntent(message, rc)
	return jsonResult(map[string]interface{}{
		"intent": cls,
		"plan":   h.orch.Plan(cls.Label),
	})
}

// Chat handles the chat tool
func (h *Handlers) Chat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.inflight.Add(1)
	defer h.inflight.Done()

	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("message argument is required and must be a string"), nil
	}

	resp, err := h.orch.Chat(ctx, core.ChatRequest{
		ConversationID: request.GetString("conversation_id", ""),
		UserID:         h.user(request),
		Message:        message,
		Level:          levelArg(request),
	})
	if err != nil {
		return toolError("chat failed", err), nil
	}
	return jsonResult(resp)
}

// AttachDocument handles the attach_document tool
func (h *Handlers) AttachDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.inflight.Add(1)
	defer h.inflight.Done()

	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required and must be a string"), nil
	}

	resp, err := h.orch.AttachDocument(ctx, core.AttachRequest{
		ConversationID: request.GetString("conversation_id", ""),
		UserID:         h.user(request),
		Text:           text,
		Filename:       request.GetString("filename", ""),
		Level:          levelArg(request),
	})
	if err != nil {
		return toolError("attach failed", err), nil
	}
	return jsonResult(resp)
}

// GetConversation handles the get_conversation tool
func (h *Handlers) GetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("conversation_id")
	if err != nil {
		return mcp.NewToolResultError("conversation_id argument is required and must be a string"), nil
	}

	conv, err := h.orch.Conversation(id)
	if err != nil {
		return toolError("conversation lookup failed", err), nil
	}

	messages := make([]map[string]interface{}, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, map[string]interface{}{
			"role":      string(m.Role),
			"content":   m.Content,
			"timestamp": m.Timestamp.Format(time.RFC3339),
		})
	}

	response := map[string]interface{}{
		"conversation_id": conv.ID,
		"user_id":         conv.UserID,
		"level":           string(conv.Level),
		"messages":        messages,
	}
	if conv.Document != nil {
		response["document"] = map[string]interface{}{
			"lesson_id": conv.Document.LessonID,
			"filename":  conv.Document.Filename,
			"framework": string(conv.Document.Framework),
			"chunks":    len(conv.Document.Chunks),
		}
	}
	return jsonResult(response)
}

// ListLessons handles the list_lessons tool
func (h *Handlers) ListLessons(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.catalog == nil {
		return mcp.NewToolResultError("lesson listing is not available for this store"), nil
	}
	lessons, err := h.catalog.ListLessons(ctx, request.GetString("user_id", ""))
	if err != nil {
		return toolError("listing failed", err), nil
	}
	if lessons == nil {
		lessons = []storage.LessonInfo{}
	}
	return jsonResult(map[string]interface{}{"lessons": lessons})
}

func (h *Handlers) user(request mcp.CallToolRequest) string {
	return request.GetString("user_id", h.defaultUser)
}

func levelArg(request mcp.CallToolRequest) models.ExplanationLevel {
	raw := request.GetString("level", "")
	if raw == "" {
		return ""
	}
	return models.ParseLevel(raw)
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	if errors.Is(err, core.ErrEmptyDocument) {
		return mcp.NewToolResultError(prefix + ": document has no usable text")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
