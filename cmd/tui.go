package cmd

import (
	"context"
	"fmt"
	"os"

	errors "github.com/Laisky/errors/v2"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Laisky/laisky-blog-web/cmd/tui"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/service"
	"github.com/Laisky/laisky-blog-web/internal/web/blog/session"
	"github.com/Laisky/laisky-blog-web/library/blogapi"
	"github.com/Laisky/laisky-blog-web/library/log"
)

var tuiCMD = &cobra.Command{
	Use:   "tui",
	Short: "Read the blog in the terminal",
	Long: `Browse posts and comments of the blog in an interactive terminal reader.

The reader talks to the backend directly, no config file is needed.

Example:
  laisky-blog-web tui --backend http://localhost:5000

Keyboard shortcuts:
  ↑/↓ or j/k  Move
  Enter       Open post / submit
  n / p       Next / previous page of posts
  c           Comments of the open post
  m           More comments
  w / a       Write a comment / reply to the selected one
  e / d       Edit / delete your own comment
  r           Retry a failed load
  l           Log in
  Esc         Go back
  q           Quit`,
	Args: gcmd.NoExtraArgs,
	Run: func(cmd *cobra.Command, args []string) {
		backend, _ := cmd.Flags().GetString("backend")
		if err := runTUI(context.Background(), backend); err != nil {
			fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	tuiCMD.Flags().String("backend", "http://localhost:5000", "base url of the blog backend")
	rootCMD.AddCommand(tuiCMD)
}

// runTUI starts the terminal reader against backendURL.
func runTUI(ctx context.Context, backendURL string) error {
	// log lines would tear the alternate screen
	if err := log.SetLevel("error"); err != nil {
		return errors.Wrap(err, "change log level")
	}

	api, err := blogapi.New(backendURL,
		blogapi.WithTimeout(defaultBackendTimeout),
		blogapi.WithLogger(log.Logger.Named("blogapi")),
	)
	if err != nil {
		return errors.Wrap(err, "new backend client")
	}

	svc, err := service.New(log.Logger.Named("tui"), api)
	if err != nil {
		return errors.Wrap(err, "new blog service")
	}

	p := tea.NewProgram(
		tui.NewModel(ctx, svc, session.NewState(uuid.NewString())),
		tea.WithAltScreen(), // Use alternate screen buffer
		tea.WithContext(ctx),
	)

	_, err = p.Run()
	return errors.WithStack(err)
}
