package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/history"
	"quill/internal/project"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded analysis turns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := history.NewStore(project.HistoryPath(projectDir), logger)
		entries, err := store.Read()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no history yet")
			return nil
		}
		if historyLimit > 0 && len(entries) > historyLimit {
			entries = entries[len(entries)-historyLimit:]
		}

		var md strings.Builder
		md.WriteString("# history\n\n")
		for _, e := range entries {
			fmt.Fprintf(&md, "**#%d** `%s` — %s\n\n", e.Sequence, e.Outcome, e.Query)
		}
		fmt.Print(renderMarkdown(md.String()))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show only the last N turns")
}
