package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easelhq/easel/internal/config"
	"github.com/easelhq/easel/internal/session"
)

const sessionsListLimit = 100

// runSessions dispatches the sessions subcommands. These talk to the
// database directly so they work without a running server.
func runSessions() error {
	if len(os.Args) < 3 {
		printSessionsUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := session.NewStore(pool, slog.Default())

	switch os.Args[2] {
	case "list":
		return runSessionsList(ctx, store)
	case "export":
		return runSessionsExport(ctx, store, os.Args[3:])
	default:
		printSessionsUsage()
		return fmt.Errorf("unknown sessions subcommand: %s", os.Args[2])
	}
}

func printSessionsUsage() {
	fmt.Println("Usage:")
	fmt.Println("  easel sessions list")
	fmt.Println("  easel sessions export <session-id> [--format json|markdown] [--preview]")
}

func runSessionsList(ctx context.Context, store *session.Store) error {
	sessions, err := store.List(ctx, sessionsListLimit, 0)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Start one with: easel serve")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, sess := range sessions {
		title := sess.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", sess.ID, title, sess.MessageCount, formatTime(sess.UpdatedAt))
	}
	return w.Flush()
}

func runSessionsExport(ctx context.Context, store *session.Store, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		printSessionsUsage()
		return fmt.Errorf("session ID is required")
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", args[0], err)
	}

	exportFlags := flag.NewFlagSet("sessions export", flag.ContinueOnError)
	exportFlags.SetOutput(os.Stderr)
	format := exportFlags.String("format", "markdown", "Transcript format: json or markdown")
	preview := exportFlags.Bool("preview", false, "Render the markdown transcript in the terminal")
	if err := exportFlags.Parse(args[1:]); err != nil {
		return fmt.Errorf("parsing export flags: %w", err)
	}

	sess, err := store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	messages, err := store.ListMessages(ctx, id, session.MaxMessageLimit, 0)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	switch *format {
	case "json":
		data, err := session.ExportJSON(sess, messages)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	case "markdown":
		data := session.ExportMarkdown(sess, messages)
		if *preview {
			if rendered, ok := renderMarkdown(string(data)); ok {
				fmt.Print(rendered)
				return nil
			}
		}
		fmt.Print(string(data))
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected json or markdown)", *format)
	}
}

// renderMarkdown styles a markdown document for the terminal. Returns
// ok=false when the renderer cannot be built, so callers can fall back
// to the raw document.
func renderMarkdown(doc string) (string, bool) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", false
	}
	rendered, err := r.Render(doc)
	if err != nil {
		return "", false
	}
	return rendered, true
}

// formatTime formats time relative to now for recent values.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
