package cmd

import (
	"fmt"
	"io"

	"simplane/pkg/api"

	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "create",
		Short: "Create a new simulation session",
		Long: `Create a simulation session for a system design. The session starts in the
created state; use 'simctl start' to run it.

Example:
  simctl create --design 3f0c... --name "peak traffic"
  simctl create --design 3f0c... --name "soak" --config '{"duration_s":3600,"rps":50}'`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()
			designID, _ := flags.GetString("design")
			name, _ := flags.GetString("name")
			description, _ := flags.GetString("description")
			rawConfig, _ := flags.GetString("config")

			if designID == "" {
				cmd.Println("Error: --design is required")
				return
			}
			if name == "" {
				cmd.Println("Error: --name is required")
				return
			}
			configuration, err := parseDocument("config", rawConfig)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return
			}

			client, ok := newClient(cmd)
			if !ok {
				return
			}

			req := api.CreateSessionRequest{
				DesignID:      designID,
				Name:          name,
				Configuration: configuration,
			}
			if flags.Changed("description") {
				req.Description = &description
			}

			session, err := client.CreateSession(req)
			if err != nil {
				printError(cmd, err)
				return
			}

			if err := render(cmd, session, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Session created!\nID:\t%s\nName:\t%s\nStatus:\t%s\n", session.ID, session.Name, session.Status)
			}); err != nil {
				printError(cmd, err)
			}
		},
	}

	flags := c.Flags()
	flags.StringP("design", "d", "", "Design ID to simulate (required)")
	flags.StringP("name", "n", "", "Session name (required)")
	flags.String("description", "", "Session description")
	flags.String("config", "", "Simulation configuration as a JSON object")
	return c
}

func newListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List simulation sessions",
		Long:  `List your own sessions, or every session of a design with --design, newest first.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			designID, _ := cmd.Flags().GetString("design")
			skip, _ := cmd.Flags().GetInt("skip")
			limit, _ := cmd.Flags().GetInt("limit")

			client, ok := newClient(cmd)
			if !ok {
				return
			}

			sessions, err := client.ListSessions(designID, skip, limit)
			if err != nil {
				printError(cmd, err)
				return
			}

			if len(sessions) == 0 && viperOutputIsTable() {
				cmd.Println("No sessions found.")
				return
			}

			if err := render(cmd, sessions, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tNAME\tSTATUS\tDESIGN\tCREATED")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Status, s.DesignID, relativeTime(s.CreatedAt)+" ago")
				}
			}); err != nil {
				printError(cmd, err)
			}
		},
	}

	c.Flags().StringP("design", "d", "", "Only sessions of this design")
	c.Flags().Int("skip", 0, "Number of sessions to skip")
	c.Flags().Int("limit", 0, "Maximum number of sessions (server default 100)")
	return c
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [session_id]",
		Short: "Show a session with its recorded history",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, ok := newClient(cmd)
			if !ok {
				return
			}

			details, err := client.GetSession(args[0])
			if err != nil {
				printError(cmd, err)
				return
			}

			if err := render(cmd, details, func(w io.Writer) { printSession(w, details) }); err != nil {
				printError(cmd, err)
			}
		},
	}
}

func printSession(w io.Writer, d *api.SessionDetailsResponse) {
	fmt.Fprintf(w, "%s %sSession Details%s\n", statusIcon(d.Status), colorBold, colorReset)
	fmt.Fprintln(w, "──────────────────────────────")
	fmt.Fprintf(w, "%sID:%s\t%s\n", colorDim, colorReset, d.ID)
	fmt.Fprintf(w, "%sName:%s\t%s\n", colorDim, colorReset, d.Name)
	fmt.Fprintf(w, "%sDesign:%s\t%s\n", colorDim, colorReset, d.DesignID)
	fmt.Fprintf(w, "%sStatus:%s\t%s\n", colorDim, colorReset, colorizeStatus(d.Status))
	fmt.Fprintf(w, "%sStarted:%s\t%s\n", colorDim, colorReset, formatTimeWithRelative(d.StartedAt))

	if d.StartedAt != nil && d.CompletedAt != nil {
		duration := d.CompletedAt.Sub(*d.StartedAt)
		fmt.Fprintf(w, "%sFinished:%s\t%s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(d.CompletedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		fmt.Fprintf(w, "%sFinished:%s\t%s\n", colorDim, colorReset, formatTimeWithRelative(d.CompletedAt))
	}

	if errMsg, ok := d.Results["error"].(string); ok && d.Status == "failed" {
		fmt.Fprintf(w, "%sError:%s\t%s%s%s\n", colorDim, colorReset, colorRed, errMsg, colorReset)
	}
	fmt.Fprintf(w, "%sRecorded:%s\t%d events, %d metrics, %d faults\n", colorDim, colorReset, len(d.Events), len(d.Metrics), len(d.Faults))
}

func newUpdateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "update [session_id]",
		Short: "Change a session's name, description or configuration",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()
			var req api.UpdateSessionRequest

			if flags.Changed("name") {
				name, _ := flags.GetString("name")
				req.Name = &name
			}
			if flags.Changed("description") {
				description, _ := flags.GetString("description")
				req.Description = &description
			}
			rawConfig, _ := flags.GetString("config")
			configuration, err := parseDocument("config", rawConfig)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return
			}
			req.Configuration = configuration

			if req.Name == nil && req.Description == nil && req.Configuration == nil {
				cmd.Println("Error: nothing to update (use --name, --description or --config)")
				return
			}

			client, ok := newClient(cmd)
			if !ok {
				return
			}

			session, err := client.UpdateSession(args[0], req)
			if err != nil {
				printError(cmd, err)
				return
			}

			if err := render(cmd, session, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Session updated\nID:\t%s\nName:\t%s\n", session.ID, session.Name)
			}); err != nil {
				printError(cmd, err)
			}
		},
	}

	c.Flags().StringP("name", "n", "", "New name")
	c.Flags().String("description", "", "New description")
	c.Flags().String("config", "", "Replacement configuration as a JSON object")
	return c
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a session and everything recorded for it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, ok := newClient(cmd)
			if !ok {
				return
			}
			if err := client.DeleteSession(args[0]); err != nil {
				printError(cmd, err)
				return
			}
			cmd.Printf("✓ Session %s deleted\n", args[0])
		},
	}
}
