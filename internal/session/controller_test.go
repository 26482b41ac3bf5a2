package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quill/internal/dataset"
	"quill/internal/generate"
	"quill/internal/history"
	"quill/internal/query"
	"quill/internal/sandbox"
	"quill/internal/session"
	"quill/internal/validate"
)

// stubGenerator returns a canned fragment or error and counts invocations.
type stubGenerator struct {
	calls int
	code  generate.GeneratedCode
	err   error
}

func (g *stubGenerator) Generate(ctx context.Context, q query.StructuredQuery) (generate.GeneratedCode, error) {
	g.calls++
	if err := ctx.Err(); err != nil {
		return generate.GeneratedCode{}, err
	}
	if g.err != nil {
		return generate.GeneratedCode{}, g.err
	}
	return g.code, nil
}

func (g *stubGenerator) Version() string { return "stub/v1" }

// stubValidator gives a fixed verdict.
type stubValidator struct {
	calls   int
	verdict validate.Verdict
}

func (v *stubValidator) Validate(code generate.GeneratedCode) validate.Verdict {
	v.calls++
	return v.verdict
}

// stubExecutor returns a fixed outcome.
type stubExecutor struct {
	calls   int
	outcome sandbox.Outcome
}

func (e *stubExecutor) Execute(ctx context.Context, code generate.GeneratedCode, ds *dataset.Dataset, timeout time.Duration) sandbox.Outcome {
	e.calls++
	return e.outcome
}

// stubCommitter records commit messages.
type stubCommitter struct {
	messages []string
	err      error
}

func (c *stubCommitter) CommitAll(message string) error {
	c.messages = append(c.messages, message)
	return c.err
}

type fixture struct {
	ctrl      *session.Controller
	gen       *stubGenerator
	val       *stubValidator
	exec      *stubExecutor
	committer *stubCommitter
	store     *history.Store
	dataPath  string
}

func okCode() generate.GeneratedCode {
	return generate.GeneratedCode{Source: "func Analyze(...)", DeclaredInputs: []string{"nums", "strs"}}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(dataPath, []byte("region,amount\nnorth,10\nsouth,20\n"), 0o644))

	f := &fixture{
		gen:       &stubGenerator{code: okCode()},
		val:       &stubValidator{verdict: validate.Verdict{Approved: true}},
		exec:      &stubExecutor{outcome: sandbox.Success(15.0, "")},
		committer: &stubCommitter{},
		store:     history.NewStore(filepath.Join(dir, "qna.json"), zap.NewNop()),
		dataPath:  dataPath,
	}
	f.ctrl = session.NewController(session.Options{
		Loader:      dataset.NewLoader(zap.NewNop()),
		Structurer:  query.NewStructurer(zap.NewNop()),
		Generator:   f.gen,
		Validator:   f.val,
		Executor:    f.exec,
		Store:       f.store,
		Committer:   f.committer,
		SaveHistory: true,
		Timeout:     time.Second,
		Log:         zap.NewNop(),
	})
	return f
}

func TestRunTurnSuccessRecordsOneEntry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))

	res, err := f.ctrl.RunTurn(context.Background(), "mean of amount")
	require.NoError(t, err)
	assert.Equal(t, sandbox.KindSuccess, res.Outcome.Kind)
	assert.Equal(t, 0, res.Entry.Sequence)

	entries, err := f.store.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mean of amount", entries[0].Query)
	assert.Equal(t, 1, f.gen.calls)
	assert.Equal(t, 1, f.exec.calls)
}

func TestRunTurnRejectedSkipsExecutor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))
	f.val.verdict = validate.Verdict{
		Approved:   false,
		Violations: []validate.Violation{{RuleID: validate.RuleFilesystemAccess, Token: "os"}},
	}

	res, err := f.ctrl.RunTurn(context.Background(), "read /etc/passwd somehow")
	require.NoError(t, err)
	assert.Equal(t, sandbox.KindRejected, res.Outcome.Kind)
	assert.Equal(t, 0, f.exec.calls)

	// The rejected turn is still part of the record.
	entries, err := f.store.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Outcome, "rejected")
}

func TestRunTurnGenerationFailureSkipsValidatorAndExecutor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))
	f.gen.err = &generate.GenerationError{Query: "x", Reason: "no supported operation recognized"}

	res, err := f.ctrl.RunTurn(context.Background(), "do something impossible")
	require.NoError(t, err)
	require.Equal(t, sandbox.KindFailure, res.Outcome.Kind)
	assert.Equal(t, sandbox.FailGenerationError, res.Outcome.FailureKind)
	assert.Equal(t, 0, f.val.calls)
	assert.Equal(t, 0, f.exec.calls)
}

func TestRunTurnWithoutDatasetSkipsGenerator(t *testing.T) {
	f := newFixture(t)

	res, err := f.ctrl.RunTurn(context.Background(), "mean of amount")
	require.NoError(t, err)
	require.Equal(t, sandbox.KindFailure, res.Outcome.Kind)
	assert.Equal(t, sandbox.FailDatasetError, res.Outcome.FailureKind)
	assert.Equal(t, 0, f.gen.calls)

	// The failed turn is recorded like any other.
	entries, err := f.store.Read()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunTurnInterruptedDuringGeneration(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.ctrl.RunTurn(ctx, "mean of amount")
	require.NoError(t, err)
	require.Equal(t, sandbox.KindFailure, res.Outcome.Kind)
	assert.Equal(t, sandbox.FailInterrupted, res.Outcome.FailureKind)
	assert.Equal(t, 0, f.exec.calls)
}

func TestRunTurnEmptyQueryRecordsStructuringError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))

	res, err := f.ctrl.RunTurn(context.Background(), "   ")
	require.NoError(t, err)
	require.Equal(t, sandbox.KindFailure, res.Outcome.Kind)
	assert.Equal(t, sandbox.FailStructuringError, res.Outcome.FailureKind)
}

func TestBuiltinsLeaveNoHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))

	for _, cmd := range []string{"help", "history", "HELP"} {
		res, err := f.ctrl.RunTurn(context.Background(), cmd)
		require.NoError(t, err)
		assert.True(t, res.Builtin)
		assert.NotEmpty(t, res.Output)
	}

	entries, err := f.store.Read()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExitBuiltinTerminates(t *testing.T) {
	f := newFixture(t)

	res, err := f.ctrl.RunTurn(context.Background(), "exit")
	require.NoError(t, err)
	assert.True(t, res.Builtin)
	assert.Equal(t, session.StateTerminated, f.ctrl.State())

	_, err = f.ctrl.RunTurn(context.Background(), "mean of amount")
	assert.ErrorIs(t, err, session.ErrTerminated)
}

func TestTerminateBlocksFurtherTurns(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Terminate()

	_, err := f.ctrl.RunTurn(context.Background(), "anything")
	assert.ErrorIs(t, err, session.ErrTerminated)
	assert.ErrorIs(t, f.ctrl.LoadDataset(f.dataPath), session.ErrTerminated)
}

func TestRequirementsAccumulateAcrossSuccessfulTurns(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))

	_, err := f.ctrl.RunTurn(context.Background(), "mean of amount to 2 decimal places")
	require.NoError(t, err)
	assert.Equal(t, "2", f.ctrl.Session().Requirements["precision"])

	// A failing turn must not overwrite the accumulated requirement.
	f.exec.outcome = sandbox.Failure(sandbox.FailUnclassified, "boom")
	_, err = f.ctrl.RunTurn(context.Background(), "mean of amount to 9 decimal places")
	require.NoError(t, err)
	assert.Equal(t, "2", f.ctrl.Session().Requirements["precision"])
}

func TestRecordedContextIncludesOwnTurn(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))

	res, err := f.ctrl.RunTurn(context.Background(), "mean of amount to 3 decimal places")
	require.NoError(t, err)

	// The entry snapshots the session after the turn is folded in, so
	// the requirement this turn introduced is already present.
	assert.Equal(t, "3", res.Entry.Context["req.precision"])
	assert.EqualValues(t, 1, res.Entry.Context["turn"])
}

func TestCommitterRunsOnlyOnSuccess(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))

	_, err := f.ctrl.RunTurn(context.Background(), "mean of amount")
	require.NoError(t, err)
	require.Len(t, f.committer.messages, 1)
	assert.Contains(t, f.committer.messages[0], "mean of amount")

	f.exec.outcome = sandbox.Timeout()
	_, err = f.ctrl.RunTurn(context.Background(), "mean of amount again")
	require.NoError(t, err)
	assert.Len(t, f.committer.messages, 1)
}

func TestCommitterFailureDoesNotFailTurn(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.LoadDataset(f.dataPath))
	f.committer.err = errors.New("git broke")

	res, err := f.ctrl.RunTurn(context.Background(), "mean of amount")
	require.NoError(t, err)
	assert.Equal(t, sandbox.KindSuccess, res.Outcome.Kind)
}

func TestSaveHistoryDisabled(t *testing.T) {
	f := newFixture(t)
	// Rebuild with history persistence off.
	ctrl := session.NewController(session.Options{
		Loader:      dataset.NewLoader(zap.NewNop()),
		Structurer:  query.NewStructurer(zap.NewNop()),
		Generator:   f.gen,
		Validator:   f.val,
		Executor:    f.exec,
		Store:       f.store,
		SaveHistory: false,
		Log:         zap.NewNop(),
	})
	require.NoError(t, ctrl.LoadDataset(f.dataPath))

	_, err := ctrl.RunTurn(context.Background(), "mean of amount")
	require.NoError(t, err)

	entries, err := f.store.Read()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadDatasetRejectsBadFile(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.LoadDataset(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
	assert.Empty(t, f.ctrl.Session().DatasetPath)
}

// TestEndToEndPipeline wires the real generator, validator and sandbox
// together and runs a full turn against a real CSV file.
func TestEndToEndPipeline(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(dataPath,
		[]byte("region,amount\nnorth,10\nsouth,20\neast,30\n"), 0o644))

	gen, err := generate.NewTemplateGenerator(zap.NewNop())
	require.NoError(t, err)

	store := history.NewStore(filepath.Join(dir, "qna.json"), zap.NewNop())
	ctrl := session.NewController(session.Options{
		Loader:      dataset.NewLoader(zap.NewNop()),
		Structurer:  query.NewStructurer(zap.NewNop()),
		Generator:   gen,
		Validator:   validate.New(zap.NewNop()),
		Executor:    sandbox.New(zap.NewNop()),
		Store:       store,
		SaveHistory: true,
		Timeout:     10 * time.Second,
		Log:         zap.NewNop(),
	})
	require.NoError(t, ctrl.LoadDataset(dataPath))
	defer ctrl.Terminate()

	res, err := ctrl.RunTurn(context.Background(), "what is the mean of amount")
	require.NoError(t, err)
	require.Equal(t, sandbox.KindSuccess, res.Outcome.Kind, "outcome: %+v", res.Outcome)
	assert.Equal(t, 20.0, res.Outcome.Value)

	res, err = ctrl.RunTurn(context.Background(), "plot a chart of amount")
	require.NoError(t, err)
	require.Equal(t, sandbox.KindFailure, res.Outcome.Kind)
	assert.Equal(t, sandbox.FailGenerationError, res.Outcome.FailureKind)

	entries, err := store.Read()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Sequence)
	assert.Equal(t, 1, entries[1].Sequence)
	assert.Contains(t, entries[0].Outcome, "success")
}
