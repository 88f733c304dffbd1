// ABOUTME: MCP tool definitions and registration for the distill server
// ABOUTME: Exposes ingest, query, intent classification, chat and lesson listing over stdio
package mcp

import (
	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/harper/distill/internal/core"
	"github.com/harper/distill/internal/storage"
)

// Options configure the registered tools
type Options struct {
	// Catalog backs list_lessons; nil leaves the tool unregistered
	Catalog storage.LessonCatalog
	// DefaultUser owns lessons and conversations when a call names no user
	DefaultUser string
	Logger      *log.Logger
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, orch *core.Orchestrator, opts Options) *Handlers {
	handlers := NewHandlers(orch, opts)

	levelProp := map[string]interface{}{
		"type":        "string",
		"description": "Explanation level: 5_year_old, intern or senior",
		"enum":        []string{"5_year_old", "intern", "senior"},
	}

	// 1. ingest_document - Turn a document into a lesson
	server.AddTool(mcp.Tool{
		Name:        "ingest_document",
		Description: "Ingest a document (raw text or a .txt/.md file path) and produce a lesson: summary, flashcards, quiz and concept map. Identical content returns the existing lesson.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Document text to ingest",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path to a .txt or .md file, used when text is empty",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Optional lesson title",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Owner of the lesson",
				},
				"level": levelProp,
			},
		},
	}, handlers.IngestDocument)

	// 2. query_lesson - Retrieval-grounded content for a lesson
	server.AddTool(mcp.Tool{
		Name:        "query_lesson",
		Description: "Generate content about a lesson or a conversation's attached document. kind is one of summary, flashcards, quiz, concept_map, workflow, explanation; when omitted it is routed from the topic.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"lesson_id": map[string]interface{}{
					"type":        "string",
					"description": "Lesson to query",
				},
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation whose attached document to query, used when lesson_id is empty",
				},
				"topic": map[string]interface{}{
					"type":        "string",
					"description": "What to focus on",
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Content kind or route action",
				},
				"level": levelProp,
			},
		},
	}, handlers.QueryLesson)

	// 3. classify_intent - Deterministic intent routing
	server.AddTool(mcp.Tool{
		Name:        "classify_intent",
		Description: "Classify a learner message into summary, diagnostic, flashcards, explanation, workflow or clarify, with the route plan it maps to.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "Message to classify",
				},
				"document_attached": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether the conversation has a document attached",
					"default":     false,
				},
			},
			Required: []string{"message"},
		},
	}, handlers.ClassifyIntent)

	// 4. chat - One conversational turn
	server.AddTool(mcp.Tool{
		Name:        "chat",
		Description: "Send a message in a tutoring conversation. Omit conversation_id to start a new one.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "User message",
				},
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation to continue",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User sending the message",
				},
				"level": levelProp,
			},
			Required: []string{"message"},
		},
	}, handlers.Chat)

	// 5. attach_document - Attach a document to a conversation
	server.AddTool(mcp.Tool{
		Name:        "attach_document",
		Description: "Ingest a document and attach it to a conversation so later chat turns are grounded in it.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Document text",
				},
				"filename": map[string]interface{}{
					"type":        "string",
					"description": "Display name of the document",
				},
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation to attach to; omitted starts a new one",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Owner of the conversation",
				},
				"level": levelProp,
			},
			Required: []string{"text"},
		},
	}, handlers.AttachDocument)

	// 6. get_conversation - Conversation history
	server.AddTool(mcp.Tool{
		Name:        "get_conversation",
		Description: "Get the message history and attached document of a conversation.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"conversation_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation ID",
				},
			},
			Required: []string{"conversation_id"},
		},
	}, handlers.GetConversation)

	// 7. list_lessons - Stored lessons
	if opts.Catalog != nil {
		server.AddTool(mcp.Tool{
			Name:        "list_lessons",
			Description: "List stored lessons, newest first.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"user_id": map[string]interface{}{
						"type":        "string",
						"description": "Only list this user's lessons",
					},
				},
			},
		}, handlers.ListLessons)
	}

	return handlers
}
