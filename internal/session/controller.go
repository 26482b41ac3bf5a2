package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quill/internal/dataset"
	"quill/internal/generate"
	"quill/internal/history"
	"quill/internal/query"
	"quill/internal/sandbox"
	"quill/internal/validate"
)

// State tracks where the controller is in its lifecycle. Stage states are
// only visible while a turn holds the mutex; observers otherwise see Idle
// or Terminated.
type State int

const (
	StateIdle State = iota
	StateStructuring
	StateGenerating
	StateValidating
	StateExecuting
	StateRecording
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStructuring:
		return "structuring"
	case StateGenerating:
		return "generating"
	case StateValidating:
		return "validating"
	case StateExecuting:
		return "executing"
	case StateRecording:
		return "recording"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrTerminated is returned by RunTurn after Terminate has been called.
var ErrTerminated = errors.New("session terminated")

// Executor runs an approved fragment against the dataset.
type Executor interface {
	Execute(ctx context.Context, code generate.GeneratedCode, ds *dataset.Dataset, timeout time.Duration) sandbox.Outcome
}

// Validator gives the safety verdict for a generated fragment.
type Validator interface {
	Validate(code generate.GeneratedCode) validate.Verdict
}

// Committer snapshots the project after a successful turn. Nil disables
// auto-commit.
type Committer interface {
	CommitAll(message string) error
}

// TurnResult is everything one turn produced. Builtin turns carry only
// Output; pipeline turns carry the structured query, the generated code
// and the execution outcome.
type TurnResult struct {
	Builtin bool
	Output  string
	Query   query.StructuredQuery
	Code    generate.GeneratedCode
	Outcome sandbox.Outcome
	Entry   history.Entry
}

// Options configures a Controller.
type Options struct {
	Loader      *dataset.Loader
	Structurer  *query.Structurer
	Generator   generate.Generator
	Validator   Validator
	Executor    Executor
	Store       *history.Store
	Committer   Committer
	SaveHistory bool
	Timeout     time.Duration
	Log         *zap.Logger
}

// Controller serializes the session: one turn at a time, and a dataset
// reload waits for the in-flight turn to finish.
type Controller struct {
	opts Options

	mu    sync.Mutex
	state State
	sess  Context
	ds    *dataset.Dataset
}

const defaultTimeout = 10 * time.Second

func NewController(opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Controller{
		opts:  opts,
		state: StateIdle,
		sess:  NewContext(),
	}
}

// Session returns a copy of the current session context.
func (c *Controller) Session() Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// State reports the controller lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LoadDataset loads or replaces the active dataset. It waits for any
// in-flight turn, so a running execution always sees the dataset it
// started with.
func (c *Controller) LoadDataset(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTerminated {
		return ErrTerminated
	}

	ds, err := c.opts.Loader.Load(path)
	if err != nil {
		c.opts.Log.Warn("dataset load failed", zap.String("path", path), zap.Error(err))
		return err
	}
	c.ds = ds
	c.sess.DatasetPath = path
	c.opts.Log.Info("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", ds.Rows()),
		zap.Int("columns", len(ds.Schema())))
	return nil
}

// Terminate ends the session. Running turns finish first; later calls to
// RunTurn return ErrTerminated.
func (c *Controller) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateTerminated
}

// RunTurn processes one raw line of user input end to end. Builtin
// commands (exit, help, history) short-circuit the pipeline and leave no
// history entry. Everything else runs the full structure → generate →
// validate → execute → record sequence; every stage failure is folded
// into a recorded outcome rather than aborting the session.
func (c *Controller) RunTurn(ctx context.Context, raw string) (TurnResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTerminated {
		return TurnResult{}, ErrTerminated
	}

	if res, ok := c.runBuiltin(raw); ok {
		return res, nil
	}

	res := c.runPipeline(ctx, raw)

	// Fold the turn into the session before recording so the entry's
	// context reflects the requirements this very turn introduced.
	next := Apply(c.sess, res.Query, res.Outcome)

	c.state = StateRecording
	entry, err := c.record(raw, res, next.Snapshot())
	c.state = StateIdle
	if err != nil {
		return res, err
	}
	res.Entry = entry

	c.sess = next

	if res.Outcome.Kind == sandbox.KindSuccess && c.opts.Committer != nil {
		msg := commitMessage(res.Query.Text)
		if err := c.opts.Committer.CommitAll(msg); err != nil {
			c.opts.Log.Warn("auto-commit failed", zap.Error(err))
		}
	}
	return res, nil
}

func (c *Controller) runPipeline(ctx context.Context, raw string) TurnResult {
	var res TurnResult

	c.state = StateStructuring
	q, err := c.opts.Structurer.Structure(raw, c.schema(), c.sess.Requirements)
	if err != nil {
		res.Query = query.StructuredQuery{Text: strings.TrimSpace(raw)}
		res.Outcome = sandbox.Failure(sandbox.FailStructuringError, err.Error())
		return res
	}
	res.Query = q

	if c.ds == nil {
		res.Outcome = sandbox.Failure(sandbox.FailDatasetError, "no dataset loaded")
		return res
	}

	c.state = StateGenerating
	code, err := c.opts.Generator.Generate(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			res.Outcome = sandbox.Failure(sandbox.FailInterrupted, ctx.Err().Error())
			return res
		}
		res.Outcome = sandbox.Failure(sandbox.FailGenerationError, err.Error())
		return res
	}
	res.Code = code

	c.state = StateValidating
	verdict := c.opts.Validator.Validate(code)
	if !verdict.Approved {
		res.Outcome = sandbox.Rejected(verdict.Violations)
		return res
	}

	c.state = StateExecuting
	res.Outcome = c.opts.Executor.Execute(ctx, code, c.ds, c.opts.Timeout)
	return res
}

func (c *Controller) record(raw string, res TurnResult, snapshot map[string]any) (history.Entry, error) {
	if !c.opts.SaveHistory {
		return history.Entry{}, nil
	}
	entry := history.Entry{
		Query:   strings.TrimSpace(raw),
		Code:    res.Code.Source,
		Outcome: res.Outcome.Summary(),
		Context: snapshot,
	}
	appended, err := c.opts.Store.Append(entry)
	if err != nil {
		c.opts.Log.Error("history append failed", zap.Error(err))
		return history.Entry{}, err
	}
	return appended, nil
}

func (c *Controller) schema() []dataset.Column {
	if c.ds == nil {
		return nil
	}
	return c.ds.Schema()
}

func (c *Controller) runBuiltin(raw string) (TurnResult, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "exit", "quit":
		c.state = StateTerminated
		return TurnResult{Builtin: true, Output: "bye"}, true
	case "help":
		return TurnResult{Builtin: true, Output: helpText}, true
	case "history":
		out, err := c.formatHistory()
		if err != nil {
			out = "history unavailable: " + err.Error()
		}
		return TurnResult{Builtin: true, Output: out}, true
	}
	return TurnResult{}, false
}

func (c *Controller) formatHistory() (string, error) {
	entries, err := c.opts.Store.Read()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "no history yet", nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "#%d  %s  %s\n", e.Sequence, e.Outcome, e.Query)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func commitMessage(queryText string) string {
	const limit = 60
	if len(queryText) > limit {
		queryText = queryText[:limit] + "..."
	}
	return "quill: " + queryText
}

const helpText = `commands:
  exit      end the session
  help      show this message
  history   list recorded turns

anything else is treated as a question about the loaded dataset.`
