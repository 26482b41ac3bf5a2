// Package validate statically checks generated fragments against an
// allow-list policy before they are handed to the sandbox. A fragment is
// approved only when every import and every statement kind it uses is
// explicitly permitted; anything unclassifiable is rejected rather than
// partially interpreted. Validation never executes code and runs in a
// single AST pass bounded by the fragment's size.
package validate

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"go.uber.org/zap"

	"quill/internal/generate"
)

// Stable rule identifiers, asserted on by tests and recorded in history.
const (
	RuleParseError       = "parse-error"
	RuleForbiddenImport  = "forbidden-import"
	RuleFilesystemAccess = "filesystem-access"
	RuleNetworkAccess    = "network-access"
	RuleProcessExec      = "process-exec"
	RuleDynamicImport    = "dynamic-import"
	RuleGoroutine        = "goroutine"
	RuleChannel          = "channel"
	RulePanic            = "panic"
	RuleNonLocalMutation = "non-local-mutation"
	RuleFragmentContract = "fragment-contract"
	RuleUnsupported      = "unsupported-construct"
)

// Violation names one policy breach. RuleID is stable across releases.
type Violation struct {
	RuleID  string `json:"rule_id"`
	Token   string `json:"token"`
	Message string `json:"message"`
}

// Verdict is the validator's full answer for one fragment.
type Verdict struct {
	Approved   bool        `json:"approved"`
	Violations []Violation `json:"violations,omitempty"`
}

// allowedImports is the closed set of packages a fragment may use. Kept
// deliberately smaller than what the interpreter could serve.
var allowedImports = map[string]struct{}{
	"errors":  {},
	"fmt":     {},
	"math":    {},
	"sort":    {},
	"strconv": {},
	"strings": {},
	"unicode": {},
}

// forbiddenImportRules maps known-dangerous import prefixes to the rule
// that names their category; anything else off the allow-list falls back
// to forbidden-import.
var forbiddenImportRules = []struct {
	prefix string
	rule   string
}{
	{"os/exec", RuleProcessExec},
	{"syscall", RuleProcessExec},
	{"os", RuleFilesystemAccess},
	{"io/ioutil", RuleFilesystemAccess},
	{"io/fs", RuleFilesystemAccess},
	{"path/filepath", RuleFilesystemAccess},
	{"embed", RuleFilesystemAccess},
	{"net", RuleNetworkAccess},
	{"plugin", RuleDynamicImport},
	{"reflect", RuleDynamicImport},
	{"unsafe", RuleDynamicImport},
	{"runtime", RuleDynamicImport},
}

// Validator applies the allow-list policy. It holds no mutable state, so
// verdicts are idempotent by construction.
type Validator struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Validator {
	return &Validator{log: log}
}

// Validate classifies every operation the fragment performs. The fragment
// is parsed exactly the way the sandbox will wrap it, so the two layers
// can never disagree about what the code is.
func (v *Validator) Validate(code generate.GeneratedCode) Verdict {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fragment.go", wrap(code.Source), parser.SkipObjectResolution)
	if err != nil {
		return reject(Violation{
			RuleID:  RuleParseError,
			Message: fmt.Sprintf("fragment does not parse: %v", err),
		})
	}

	w := &walker{
		fset:    fset,
		inputs:  make(map[string]struct{}, len(code.DeclaredInputs)),
		tainted: make(map[string]bool, len(code.DeclaredInputs)),
	}
	for _, name := range code.DeclaredInputs {
		w.inputs[name] = struct{}{}
		w.tainted[name] = true
	}

	w.checkImports(file)
	w.checkTopLevel(file)
	ast.Inspect(file, w.inspect)

	verdict := Verdict{Approved: len(w.violations) == 0, Violations: w.violations}
	if !verdict.Approved {
		v.log.Info("fragment rejected",
			zap.Int("violations", len(verdict.Violations)),
			zap.String("first_rule", verdict.Violations[0].RuleID))
	}
	return verdict
}

// wrap mirrors the sandbox's package wrapping.
func wrap(src string) string {
	if strings.Contains(src, "package main") {
		return src
	}
	return "package main\n\n" + src
}

func reject(violations ...Violation) Verdict {
	return Verdict{Approved: false, Violations: violations}
}

type walker struct {
	fset       *token.FileSet
	inputs     map[string]struct{}
	tainted    map[string]bool
	violations []Violation
}

func (w *walker) add(rule, tok, msg string) {
	w.violations = append(w.violations, Violation{RuleID: rule, Token: tok, Message: msg})
}

func (w *walker) checkImports(file *ast.File) {
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if _, ok := allowedImports[path]; ok {
			continue
		}
		rule := RuleForbiddenImport
		for _, fr := range forbiddenImportRules {
			if path == fr.prefix || strings.HasPrefix(path, fr.prefix+"/") {
				rule = fr.rule
				break
			}
		}
		w.add(rule, path, fmt.Sprintf("import %q is not on the allow-list", path))
	}
}

// checkTopLevel enforces the fragment contract: function declarations plus
// const/var/import blocks only, with exactly one Analyze entry point of the
// expected shape.
func (w *walker) checkTopLevel(file *ast.File) {
	analyzeCount := 0
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Name.Name == "Analyze" {
				analyzeCount++
				if !analyzeShapeOK(d) {
					w.add(RuleFragmentContract, "Analyze",
						"Analyze must be func(map[string][]float64, map[string][]string) (interface{}, error)")
				}
			}
			if d.Recv != nil {
				w.add(RuleUnsupported, d.Name.Name, "method declarations are not supported")
			}
		case *ast.GenDecl:
			switch d.Tok {
			case token.IMPORT, token.CONST, token.VAR, token.TYPE:
				// allowed
			default:
				w.add(RuleUnsupported, d.Tok.String(), "unsupported top-level declaration")
			}
		default:
			w.add(RuleUnsupported, "", "unsupported top-level declaration")
		}
	}
	if analyzeCount != 1 {
		w.add(RuleFragmentContract, "Analyze",
			fmt.Sprintf("fragment must declare exactly one Analyze function, found %d", analyzeCount))
	}
}

func analyzeShapeOK(d *ast.FuncDecl) bool {
	t := d.Type
	if t.Params == nil || len(t.Params.List) != 2 {
		return false
	}
	if t.Results == nil || len(t.Results.List) != 2 {
		return false
	}
	return true
}

// inspect classifies statements and expressions. Statement kinds are
// allow-listed; everything surprising rejects the fragment.
func (w *walker) inspect(n ast.Node) bool {
	switch node := n.(type) {
	case *ast.GoStmt:
		w.add(RuleGoroutine, "go", "goroutines are not permitted in fragments")
	case *ast.SendStmt:
		w.add(RuleChannel, "<-", "channel operations are not permitted in fragments")
	case *ast.SelectStmt:
		w.add(RuleChannel, "select", "channel operations are not permitted in fragments")
	case *ast.ChanType:
		w.add(RuleChannel, "chan", "channel types are not permitted in fragments")
	case *ast.DeferStmt:
		w.add(RuleUnsupported, "defer", "defer is not permitted in fragments")
	case *ast.LabeledStmt:
		w.add(RuleUnsupported, node.Label.Name, "labels are not permitted in fragments")
	case *ast.BranchStmt:
		if node.Tok == token.GOTO {
			w.add(RuleUnsupported, "goto", "goto is not permitted in fragments")
		}
	case *ast.UnaryExpr:
		if node.Op == token.ARROW {
			w.add(RuleChannel, "<-", "channel operations are not permitted in fragments")
		}
	case *ast.CallExpr:
		w.checkCall(node)
	case *ast.AssignStmt:
		for _, lhs := range node.Lhs {
			w.checkMutation(lhs)
		}
		w.propagateTaint(node)
	case *ast.IncDecStmt:
		w.checkMutation(node.X)
	}
	return true
}

// checkCall rejects panic and the builtins that write through their first
// argument when that argument aliases the bound dataset.
func (w *walker) checkCall(call *ast.CallExpr) {
	ident, ok := call.Fun.(*ast.Ident)
	if !ok {
		return
	}
	switch ident.Name {
	case "panic":
		w.add(RulePanic, "panic", "fragments must return errors, not panic")
	case "delete", "append", "copy":
		if len(call.Args) > 0 && w.rootsAtTainted(call.Args[0]) {
			w.add(RuleNonLocalMutation, ident.Name,
				fmt.Sprintf("%s on data aliasing a bound input is not permitted", ident.Name))
		}
	}
}

// checkMutation rejects writes through the bound dataset maps, including
// writes through local aliases of them. ast.Inspect visits statements in
// source order, so the taint set already covers every alias bound above
// the write. Rebinding a local alias is fine; rebinding the input name
// itself is not.
func (w *walker) checkMutation(lhs ast.Expr) {
	steps := 0
	root := lhs
	for {
		switch e := root.(type) {
		case *ast.ParenExpr:
			root = e.X
		case *ast.IndexExpr:
			steps++
			root = e.X
		case *ast.SliceExpr:
			steps++
			root = e.X
		case *ast.SelectorExpr:
			steps++
			root = e.X
		case *ast.StarExpr:
			steps++
			root = e.X
		case *ast.Ident:
			if steps > 0 {
				if w.tainted[e.Name] {
					w.add(RuleNonLocalMutation, e.Name,
						fmt.Sprintf("write through %q reaches a bound input", e.Name))
				}
			} else if _, bound := w.inputs[e.Name]; bound {
				w.add(RuleNonLocalMutation, e.Name,
					fmt.Sprintf("fragments must not reassign the bound input %q", e.Name))
			}
			return
		default:
			return
		}
	}
}

// propagateTaint marks variables bound from expressions rooted at a bound
// input (or at an already-tainted alias). Shadowing is ignored, so a name
// once tainted stays tainted; the policy errs toward rejection.
func (w *walker) propagateTaint(assign *ast.AssignStmt) {
	if len(assign.Rhs) == len(assign.Lhs) {
		for i, rhs := range assign.Rhs {
			if w.rootsAtTainted(rhs) {
				w.taintIdent(assign.Lhs[i])
			}
		}
		return
	}
	for _, rhs := range assign.Rhs {
		if w.rootsAtTainted(rhs) {
			for _, lhs := range assign.Lhs {
				w.taintIdent(lhs)
			}
			return
		}
	}
}

// rootsAtTainted reports whether evaluating expr can yield a view into
// tainted data: indexing, slicing, selecting or an append result all keep
// the alias alive.
func (w *walker) rootsAtTainted(expr ast.Expr) bool {
	for {
		switch e := expr.(type) {
		case *ast.ParenExpr:
			expr = e.X
		case *ast.IndexExpr:
			expr = e.X
		case *ast.SliceExpr:
			expr = e.X
		case *ast.SelectorExpr:
			expr = e.X
		case *ast.StarExpr:
			expr = e.X
		case *ast.UnaryExpr:
			expr = e.X
		case *ast.CallExpr:
			ident, ok := e.Fun.(*ast.Ident)
			if !ok || ident.Name != "append" || len(e.Args) == 0 {
				return false
			}
			expr = e.Args[0]
		case *ast.Ident:
			return w.tainted[e.Name]
		default:
			return false
		}
	}
}

func (w *walker) taintIdent(lhs ast.Expr) {
	if ident, ok := lhs.(*ast.Ident); ok && ident.Name != "_" {
		w.tainted[ident.Name] = true
	}
}
