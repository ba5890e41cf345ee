package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "events [session_id]",
		Short: "List recorded events in simulation-time order",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			component, _ := cmd.Flags().GetString("component")
			skip, _ := cmd.Flags().GetInt("skip")
			limit, _ := cmd.Flags().GetInt("limit")

			client, ok := newClient(cmd)
			if !ok {
				return
			}

			events, err := client.ListEvents(args[0], component, skip, limit)
			if err != nil {
				printError(cmd, err)
				return
			}

			if len(events) == 0 && viperOutputIsTable() {
				cmd.Println("No events recorded.")
				return
			}

			if err := render(cmd, events, func(w io.Writer) {
				fmt.Fprintln(w, "T\tTYPE\tCOMPONENT\tDATA")
				for _, e := range events {
					fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", e.Timestamp, e.EventType, deref(e.ComponentID), compactJSON(e.Data))
				}
			}); err != nil {
				printError(cmd, err)
			}
		},
	}

	c.Flags().StringP("component", "c", "", "Only events of this component")
	c.Flags().Int("skip", 0, "Number of events to skip")
	c.Flags().Int("limit", 0, "Maximum number of events (server default 1000)")
	return c
}

func newMetricsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "metrics [session_id]",
		Short: "List recorded metric samples in simulation-time order",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			component, _ := cmd.Flags().GetString("component")
			name, _ := cmd.Flags().GetString("name")
			skip, _ := cmd.Flags().GetInt("skip")
			limit, _ := cmd.Flags().GetInt("limit")

			client, ok := newClient(cmd)
			if !ok {
				return
			}

			metrics, err := client.ListMetrics(args[0], component, name, skip, limit)
			if err != nil {
				printError(cmd, err)
				return
			}

			if len(metrics) == 0 && viperOutputIsTable() {
				cmd.Println("No metrics recorded.")
				return
			}

			if err := render(cmd, metrics, func(w io.Writer) {
				fmt.Fprintln(w, "T\tMETRIC\tCOMPONENT\tVALUE\tUNIT")
				for _, m := range metrics {
					fmt.Fprintf(w, "%.3f\t%s\t%s\t%g\t%s\n", m.Timestamp, m.MetricName, deref(m.ComponentID), m.Value, deref(m.Unit))
				}
			}); err != nil {
				printError(cmd, err)
			}
		},
	}

	c.Flags().StringP("component", "c", "", "Only samples of this component")
	c.Flags().String("name", "", "Only samples of this metric")
	c.Flags().Int("skip", 0, "Number of samples to skip")
	c.Flags().Int("limit", 0, "Maximum number of samples (server default 10000)")
	return c
}
