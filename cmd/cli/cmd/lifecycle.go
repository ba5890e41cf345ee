package cmd

import (
	"fmt"
	"io"

	"simplane/pkg/api"

	"github.com/spf13/cobra"
)

func newTransitionCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " [session_id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runTransition(cmd, args[0], op, nil)
		},
	}
}

func newStopCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "stop [session_id]",
		Short: "Stop a running session, optionally recording its results",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			rawResults, _ := cmd.Flags().GetString("results")
			results, err := parseDocument("results", rawResults)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return
			}

			var body any
			if results != nil {
				body = api.StopSessionRequest{Results: results}
			}
			runTransition(cmd, args[0], "stop", body)
		},
	}
	c.Flags().String("results", "", "Run results as a JSON object")
	return c
}

func runTransition(cmd *cobra.Command, id, op string, body any) {
	client, ok := newClient(cmd)
	if !ok {
		return
	}

	session, err := client.Transition(id, op, body)
	if err != nil {
		printError(cmd, err)
		return
	}

	if err := render(cmd, session, func(w io.Writer) {
		fmt.Fprintf(w, "%s Session %s is now %s\n", statusIcon(session.Status), session.ID, colorizeStatus(session.Status))
	}); err != nil {
		printError(cmd, err)
	}
}
