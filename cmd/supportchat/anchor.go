package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Inspect or clear the stored active-ticket anchor",
}

var anchorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the anchored ticket id",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		store, err := newAnchorStore(ctx, cfg)
		if err != nil {
			return err
		}
		id, err := store.Load(ctx)
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no active ticket")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var anchorClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the anchored ticket",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		store, err := newAnchorStore(ctx, cfg)
		if err != nil {
			return err
		}
		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "anchor cleared")
		return nil
	},
}

func init() {
	anchorCmd.AddCommand(anchorShowCmd)
	anchorCmd.AddCommand(anchorClearCmd)
}
