// ABOUTME: CLI command for a document-grounded tutoring conversation
// ABOUTME: Interactive REPL with /attach, /level and /quit, or a single turn from args
package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/core"
	"github.com/harper/distill/internal/extract"
	"github.com/harper/distill/internal/models"
)

var (
	chatAttach string
)

// NewChatCmd creates the chat command
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Chat with a tutor about a document",
		Long: `Chat with a tutor about a document.

Attach a document, then ask for a summary, flashcards, a quiz, a workflow
or an explanation in plain words. With a message argument, one turn is
run and the command exits. Without one, an interactive session starts.

Session commands:
  /attach <file>   attach a document to the conversation
  /level <level>   switch explanation level (5_year_old, intern, senior)
  /quit            end the session

Examples:
  distill chat --attach notes/k8s.md
  distill chat --attach notes/k8s.md "make me some flashcards"`,
		RunE: runChat,
	}

	cmd.Flags().StringVar(&chatAttach, "attach", "", "Document to attach before the first message")

	return cmd
}

// chatSession is one conversation driven from the terminal
type chatSession struct {
	orch   *core.Orchestrator
	convID string
	level  models.ExplanationLevel
	out    io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	s := &chatSession{orch: a.orch, level: levelValue(), out: cmd.OutOrStdout()}
	ctx := cmd.Context()

	if chatAttach != "" {
		if err := s.attach(ctx, chatAttach); err != nil {
			return err
		}
	}

	if len(args) > 0 {
		return s.send(ctx, strings.Join(args, " "))
	}
	return s.repl(ctx, cmd.InOrStdin(), cmd.ErrOrStderr())
}

func (s *chatSession) repl(ctx context.Context, in io.Reader, prompt io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if !quiet {
			fmt.Fprint(prompt, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case strings.HasPrefix(line, "/attach "):
			err = s.attach(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/attach ")))
		case strings.HasPrefix(line, "/level "):
			s.level = models.ParseLevel(strings.TrimPrefix(line, "/level "))
			fmt.Fprintf(s.out, "Explanation level set to %s\n", s.level)
		default:
			err = s.send(ctx, line)
		}
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *chatSession) attach(ctx context.Context, path string) error {
	text, err := extract.File(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	resp, err := s.orch.AttachDocument(ctx, core.AttachRequest{
		ConversationID: s.convID,
		UserID:         userID,
		Text:           text,
		Filename:       filepath.Base(path),
		Level:          s.level,
	})
	if err != nil {
		return err
	}
	return s.print(resp)
}

func (s *chatSession) send(ctx context.Context, msg string) error {
	resp, err := s.orch.Chat(ctx, core.ChatRequest{
		ConversationID: s.convID,
		UserID:         userID,
		Message:        msg,
		Level:          s.level,
	})
	if err != nil {
		return err
	}
	return s.print(resp)
}

func (s *chatSession) print(resp *core.ChatResponse) error {
	s.convID = resp.ConversationID
	if jsonOutput() {
		return printJSON(s.out, resp)
	}
	fmt.Fprintf(s.out, "%s\n", resp.Reply)
	if verbose {
		fmt.Fprintf(s.out, "  [intent %s %.2f, lesson %s]\n", resp.Intent.Label, resp.Intent.Confidence, resp.LessonID)
	}
	return nil
}
