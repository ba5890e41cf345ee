package cmd

import (
	"fmt"
	"io"

	"simplane/pkg/api"

	"github.com/spf13/cobra"
)

func newFaultCmd() *cobra.Command {
	faultCmd := &cobra.Command{
		Use:   "fault",
		Short: "Schedule, list and cancel fault injections",
		Long:  `Faults disrupt a target component at a simulation-relative start time, optionally for a limited duration.`,
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule [session_id]",
		Short: "Schedule a fault against a component",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()
			faultType, _ := flags.GetString("type")
			target, _ := flags.GetString("target")
			start, _ := flags.GetFloat64("start")
			rawParams, _ := flags.GetString("params")

			if faultType == "" || target == "" {
				cmd.Println("Error: --type and --target are required")
				return
			}
			params, err := parseDocument("params", rawParams)
			if err != nil {
				cmd.Printf("Error: %v\n", err)
				return
			}

			req := api.ScheduleFaultRequest{
				FaultType:       faultType,
				TargetComponent: target,
				Parameters:      params,
				StartTime:       &start,
			}
			if flags.Changed("duration") {
				duration, _ := flags.GetFloat64("duration")
				req.Duration = &duration
			}

			client, ok := newClient(cmd)
			if !ok {
				return
			}

			fault, err := client.ScheduleFault(args[0], req)
			if err != nil {
				printError(cmd, err)
				return
			}

			if err := render(cmd, fault, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Fault scheduled!\nID:\t%s\nType:\t%s\nTarget:\t%s\nStart:\t%gs\n", fault.ID, fault.FaultType, fault.TargetComponent, fault.StartTime)
			}); err != nil {
				printError(cmd, err)
			}
		},
	}
	scheduleCmd.Flags().String("type", "", "Fault type, e.g. latency or crash (required)")
	scheduleCmd.Flags().String("target", "", "Target component ID (required)")
	scheduleCmd.Flags().Float64("start", 0, "Start time in simulation seconds")
	scheduleCmd.Flags().Float64("duration", 0, "Duration in simulation seconds (omit for open-ended)")
	scheduleCmd.Flags().String("params", "", "Fault parameters as a JSON object")

	listCmd := &cobra.Command{
		Use:   "list [session_id]",
		Short: "List a session's faults by start time",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, ok := newClient(cmd)
			if !ok {
				return
			}

			faults, err := client.ListFaults(args[0])
			if err != nil {
				printError(cmd, err)
				return
			}

			if len(faults) == 0 && viperOutputIsTable() {
				cmd.Println("No faults scheduled.")
				return
			}

			if err := render(cmd, faults, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tTYPE\tTARGET\tSTART\tDURATION\tSTATUS")
				for _, f := range faults {
					duration := "-"
					if f.Duration != nil {
						duration = fmt.Sprintf("%gs", *f.Duration)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%gs\t%s\t%s\n", f.ID, f.FaultType, f.TargetComponent, f.StartTime, duration, f.Status)
				}
			}); err != nil {
				printError(cmd, err)
			}
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [session_id] [fault_id]",
		Short: "Cancel a scheduled fault",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			client, ok := newClient(cmd)
			if !ok {
				return
			}
			if err := client.DeleteFault(args[0], args[1]); err != nil {
				printError(cmd, err)
				return
			}
			cmd.Printf("✓ Fault %s cancelled\n", args[1])
		},
	}

	faultCmd.AddCommand(scheduleCmd, listCmd, deleteCmd)
	return faultCmd
}
