package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"quill/internal/gitops"
	"quill/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Scaffold a new analysis project",
	Long: `Creates the project layout (data/raw, data/processed, src), an empty
qna.json history file, default .quill settings and a git repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := projectDir
		if len(args) == 1 {
			dir = args[0]
		}

		if err := project.NewInitializer(logger).Init(dir); err != nil {
			return err
		}
		if err := gitops.NewController(dir, logger).InitRepository(); err != nil {
			return err
		}

		fmt.Println(banner())
		fmt.Printf("initialized project in %s\n", dir)
		return nil
	},
}
