package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newEvaluateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <client>",
		Short: "Evaluate a client's alert rules once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			eng, _ := a.newEngine(st)
			res, err := eng.EvaluateClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func newSweepCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep <client>",
		Short: "Alert on a client's unhandled critical hallucination cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			eng, _ := a.newEngine(st)
			res := eng.Sweep(cmd.Context(), args[0])
			return printJSON(cmd, map[string]interface{}{
				"created":            res.Created,
				"notifications_sent": res.NotificationsSent,
				"message":            fmt.Sprintf("%d new critical alerts generated", res.Created),
			})
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
