package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/gitops"
)

var commitCmd = &cobra.Command{
	Use:   "commit [message]",
	Short: "Snapshot the project with git",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		msg := strings.TrimSpace(strings.Join(args, " "))
		if msg == "" {
			msg = "quill: manual snapshot"
		}
		if err := gitops.NewController(projectDir, logger).CommitAll(msg); err != nil {
			return err
		}
		fmt.Println("committed")
		return nil
	},
}
