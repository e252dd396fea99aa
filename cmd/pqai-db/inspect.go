package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pqaidevteam/pqai-db/internal/app"
)

var lsCmd = &cobra.Command{
	Use:   "ls DATASET [PREFIX]",
	Short: "List keys in a dataset",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		backend, err := a.Backend(cfg, args[0])
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) == 2 {
			prefix = args[1]
		}
		listing, err := backend.List(cmd.Context(), prefix)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range listing.Keys {
			fmt.Fprintln(out, k)
		}
		if listing.Truncated {
			fmt.Fprintf(cmd.ErrOrStderr(), "listing truncated at %d keys\n", len(listing.Keys))
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get DATASET KEY",
	Short: "Write the content stored at KEY to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		backend, err := a.Backend(cfg, args[0])
		if err != nil {
			return err
		}
		data, err := backend.Get(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(lsCmd, getCmd)
}
