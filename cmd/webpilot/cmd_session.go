// This file contains the session lifecycle commands.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"webpilot/internal/session"
	"webpilot/internal/store"
	"webpilot/internal/stream"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persistent browser sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start [initial-url]",
	Short: "Start a persistent browser session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [session-id]",
	Short: "End a persistent browser session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionEnd,
}

var (
	listJSON  bool
	listWatch bool
)

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known browser sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

func init() {
	sessionListCmd.Flags().BoolVar(&listJSON, "json", false, "output the raw registry as JSON")
	sessionListCmd.Flags().BoolVar(&listWatch, "watch", false, "follow registry changes")
	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd, sessionListCmd)
	rootCmd.AddCommand(sessionCmd)
}

func newManager() (*session.Manager, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return session.NewManager(st, cfg, logger), st, nil
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	initialURL := envDefault("PARAM_URL", "")
	if len(args) > 0 {
		initialURL = args[0]
	}

	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	res := mgr.Create(cmd.Context(), initialURL)
	if err := stream.WriteResult(os.Stdout, res); err != nil {
		return err
	}
	if !res.Success {
		return errFailed
	}
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	id := envDefault("PARAM_SESSION_ID", "")
	if len(args) > 0 {
		id = args[0]
	}
	if id == "" {
		res := session.EndResult{Success: false, Error: "session_id is required for end_session"}
		if err := stream.WriteResult(os.Stdout, res); err != nil {
			return err
		}
		return errFailed
	}

	mgr, _, err := newManager()
	if err != nil {
		return err
	}

	res := mgr.End(cmd.Context(), id)
	if err := stream.WriteResult(os.Stdout, res); err != nil {
		return err
	}
	if !res.Success {
		return errFailed
	}
	return nil
}

var (
	listHeaderStyle = lipgloss.NewStyle().Bold(true)
	listIDStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	listActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	listReadyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	listDimStyle    = lipgloss.NewStyle().Faint(true)
)

func runSessionList(cmd *cobra.Command, args []string) error {
	_, st, err := newManager()
	if err != nil {
		return err
	}

	if listWatch {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		updates, err := st.Watch(ctx)
		if err != nil {
			return err
		}
		for sessions := range updates {
			printSessions(sessions)
		}
		return nil
	}

	sessions, err := st.Load()
	if err != nil {
		return err
	}
	if listJSON {
		return stream.WriteResult(os.Stdout, sessions)
	}
	printSessions(sessions)
	return nil
}

func printSessions(sessions map[string]store.Session) {
	if listJSON {
		_ = stream.WriteResult(os.Stdout, sessions)
		return
	}
	if len(sessions) == 0 {
		fmt.Println(listDimStyle.Render("no active sessions"))
		return
	}

	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println(listHeaderStyle.Render(fmt.Sprintf("%-20s %-8s %-24s %s", "SESSION", "STATUS", "ENDPOINT", "LAST USED")))
	for _, id := range ids {
		sess := sessions[id]
		// Pad before styling so ANSI codes do not skew the columns.
		status := fmt.Sprintf("%-8s", sess.Status)
		switch sess.Status {
		case store.StatusActive:
			status = listActiveStyle.Render(status)
		case store.StatusReady:
			status = listReadyStyle.Render(status)
		}
		fmt.Printf("%s %s %-24s %s\n",
			listIDStyle.Render(fmt.Sprintf("%-20s", id)),
			status,
			sess.CDPEndpoint,
			listDimStyle.Render(humanizeSince(sess.LastUsed)),
		)
	}
}

func humanizeSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t).Truncate(time.Second)
	if d < time.Second {
		return "just now"
	}
	return fmt.Sprintf("%s ago", d)
}
