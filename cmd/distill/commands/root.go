// ABOUTME: Root command and global flags for the Distill CLI
// ABOUTME: Registers every subcommand and loads .env before any of them run
package commands

import (
	"errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
	configPath   string
	userID       string
	levelFlag    string
)

const banner = `
██████╗ ██╗███████╗████████╗██╗██╗     ██╗
██╔══██╗██║██╔════╝╚══██╔══╝██║██║     ██║
██║  ██║██║███████╗   ██║   ██║██║     ██║
██║  ██║██║╚════██║   ██║   ██║██║     ██║
██████╔╝██║███████║   ██║   ██║███████╗███████╗
╚═════╝ ╚═╝╚══════╝   ╚═╝   ╚═╝╚══════╝╚══════╝`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distill",
		Short: "Turn technical documents into lessons",
		Long: banner + `

Distill turns technical documents into study material: summaries,
flashcards, quizzes, concept maps and grounded answers. Documents are
chunked, embedded and retrieved so every answer stays close to the source.

Without OPENAI_API_KEY everything still works offline using heuristic
summaries and deterministic embeddings.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose && quiet {
				return errors.New("--verbose and --quiet cannot be used together")
			}
			// Load .env if present (API keys, store selection)
			_ = godotenv.Load()
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logging")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results and errors")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, json")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&userID, "user", defaultUser(), "User the lessons belong to")
	cmd.PersistentFlags().StringVar(&levelFlag, "level", "", "Explanation level: 5_year_old, intern, senior")

	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewQueryCmd())
	cmd.AddCommand(NewClassifyCmd())
	cmd.AddCommand(NewChatCmd())
	cmd.AddCommand(NewLessonsCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
