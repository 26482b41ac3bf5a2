package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quill/internal/config"
	"quill/internal/dataset"
	"quill/internal/generate"
	"quill/internal/gitops"
	"quill/internal/history"
	"quill/internal/project"
	"quill/internal/query"
	"quill/internal/sandbox"
	"quill/internal/session"
	"quill/internal/validate"
)

var (
	dataPath    string
	chatMode    bool
	execTimeout time.Duration
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [question]",
	Short: "Answer a question about a dataset",
	Long: `Runs one question through the full pipeline, or starts an interactive
session with --chat. The dataset is given with --data and may be CSV,
XLSX, NDJSON or Parquet.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := buildController()
		if err != nil {
			return err
		}
		defer ctrl.Terminate()

		if dataPath != "" {
			if err := ctrl.LoadDataset(dataPath); err != nil {
				return err
			}
		}

		if chatMode {
			return runChat(ctrl, os.Stdin)
		}

		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("no question given (or use --chat)")
		}
		res, err := ctrl.RunTurn(cmd.Context(), question)
		if err != nil {
			return err
		}
		printTurn(res)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&dataPath, "data", "d", "", "dataset file to analyze")
	analyzeCmd.Flags().BoolVar(&chatMode, "chat", false, "start an interactive session")
	analyzeCmd.Flags().DurationVar(&execTimeout, "timeout", 10*time.Second, "per-execution time bound")
}

// buildController wires the full pipeline from the project's settings.
func buildController() (*session.Controller, error) {
	cfg := config.NewHandler(projectDir, logger)
	autoCommit, err := cfg.Bool("auto_commit")
	if err != nil {
		return nil, err
	}
	saveHistory, err := cfg.Bool("save_history")
	if err != nil {
		return nil, err
	}

	gen, err := pickGenerator()
	if err != nil {
		return nil, err
	}

	var committer session.Committer
	if autoCommit {
		committer = gitops.NewController(projectDir, logger)
	}

	return session.NewController(session.Options{
		Loader:      dataset.NewLoader(logger),
		Structurer:  query.NewStructurer(logger),
		Generator:   gen,
		Validator:   validate.New(logger),
		Executor:    sandbox.New(logger),
		Store:       history.NewStore(project.HistoryPath(projectDir), logger),
		Committer:   committer,
		SaveHistory: saveHistory,
		Timeout:     execTimeout,
		Log:         logger,
	}), nil
}

// pickGenerator prefers the Gemini generator when an API key is present
// and falls back to the deterministic template generator otherwise.
func pickGenerator() (generate.Generator, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return generate.NewGeminiGenerator(context.Background(), key, "", logger)
	}
	return generate.NewTemplateGenerator(logger)
}

func runChat(ctrl *session.Controller, in io.Reader) error {
	fmt.Println(banner())
	fmt.Println(detailStyle.Render("type 'help' for commands, 'exit' to leave"))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Print(promptStyle.Render("quill> "))
		select {
		case <-sigs:
			fmt.Println()
			ctrl.Terminate()
			return nil
		case err := <-scanErr:
			fmt.Println()
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-sigs:
					cancel()
				case <-ctx.Done():
				}
			}()
			res, err := ctrl.RunTurn(ctx, line)
			cancel()
			if err == session.ErrTerminated {
				return nil
			}
			if err != nil {
				fmt.Println(errorStyle.Render("error: " + err.Error()))
				continue
			}
			printTurn(res)
			if res.Builtin && ctrl.State() == session.StateTerminated {
				return nil
			}
		}
	}
}

func printTurn(res session.TurnResult) {
	if res.Builtin {
		fmt.Println(builtinStyle.Render(res.Output))
		return
	}

	switch res.Outcome.Kind {
	case sandbox.KindSuccess:
		fmt.Println(resultStyle.Render(fmt.Sprintf("%v", res.Outcome.Value)))
		if res.Outcome.Stdout != "" {
			printDetail("%s", strings.TrimRight(res.Outcome.Stdout, "\n"))
		}
	case sandbox.KindTimeout:
		fmt.Println(errorStyle.Render("execution timed out"))
	case sandbox.KindRejected:
		fmt.Println(rejectStyle.Render("rejected by safety policy"))
		for _, v := range res.Outcome.Violations {
			printDetail("  %s: %s", v.RuleID, v.Message)
		}
	case sandbox.KindFailure:
		fmt.Println(errorStyle.Render(fmt.Sprintf("%s: %s", res.Outcome.FailureKind, res.Outcome.Message)))
	}
}
