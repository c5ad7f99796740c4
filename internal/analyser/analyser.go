// Package analyser is the static analyser: it parses a single program
// text syntactically, with no execution, and enumerates every import,
// class instantiation, method call, function call and attribute access it
// references, each tagged with the (line, column) of its call site.
//
// The recognised language is Python-shaped source text
// ("self, x: int", "from r import C"). Receiver type hints are
// resolved by local reasoning only: an assignment `x = Class(...)` binds x
// to Class for the rest of its enclosing function; parameter annotations
// (`def f(x: Class)`) bind the same way. A receiver this can't resolve gets
// the hint "unknown" rather than aborting the scan.
package analyser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/seanblong/codeknow/pkg/codegraph"
)

// Import is one import statement: `import pkg.mod` or `from pkg.mod import A, B`.
type Import struct {
	ModulePath string
	Symbols    []string
	Line       int
	Column     int
}

// ClassInstantiation is one `Class(...)` call site.
type ClassInstantiation struct {
	ClassName  string
	ModuleHint string
	Line       int
	Column     int
}

// MethodCall is one `receiver.method(...)` call site.
type MethodCall struct {
	ReceiverTypeHint string
	MethodName       string
	PositionalArgc   int
	KeywordArgs      []string
	Line             int
	Column           int
}

// FunctionCall is one bare `function(...)` call site.
type FunctionCall struct {
	ModuleHint     string
	FunctionName   string
	PositionalArgc int
	KeywordArgs    []string
	Line           int
	Column         int
}

// AttributeAccess is one `receiver.attribute` site that is not itself a call.
type AttributeAccess struct {
	ReceiverTypeHint string
	AttributeName    string
	Line             int
	Column           int
}

// AnalysisResult is everything Analyse found, each slice already ordered by
// (line, column).
type AnalysisResult struct {
	Imports             []Import
	ClassInstantiations []ClassInstantiation
	MethodCalls         []MethodCall
	FunctionCalls       []FunctionCall
	AttributeAccesses   []AttributeAccess
}

// Reference is the unified view the Validator and Hallucination Detector
// drive: one emitted reference regardless of which of the five categories
// produced it.
type Reference struct {
	Kind             codegraph.ReferenceKind
	Name             string
	ModuleHint       string
	ReceiverTypeHint string
	PositionalArgc   int
	KeywordArgs      []string
	Line             int
	Column           int
}

// UnknownReceiver is the sentinel hint for a receiver Analyse couldn't bind
// to a known class within its enclosing scope.
const UnknownReceiver = "unknown"

var (
	importRe     = regexp.MustCompile(`^\s*import\s+([\w.]+)`)
	fromImportRe = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s+(.+?)\s*$`)
	defRe        = regexp.MustCompile(`^\s*def\s+\w+\s*\(([^)]*)\)`)
	assignRe     = regexp.MustCompile(`(\w+)\s*=\s*([\w.]+)\s*\(([^)]*)\)`)
	callRe       = regexp.MustCompile(`([\w.]+)\s*\(([^)]*)\)`)
	attrRe       = regexp.MustCompile(`\b(\w+)\.(\w+)\b`)
	// chainedCallRe recognises a method called directly on a fresh call
	// result, e.g. `C().m(1)`, where there is no intermediate variable for
	// analyseCalls' scope lookup to resolve.
	chainedCallRe = regexp.MustCompile(`([\w.]+)\(([^)]*)\)\.(\w+)\(([^)]*)\)`)
	kwArgRe       = regexp.MustCompile(`^(\w+)\s*=`)
)

// Analyse scans programText line by line. Scope tracking is reset at every
// `def` line: the function's own parameter annotations seed the new scope,
// and assignments within the function extend it. Module-level assignments
// (before any `def`) form the initial scope inherited by every function,
// mirroring how a short script commonly reads.
func Analyse(programText string) AnalysisResult {
	var res AnalysisResult
	scope := map[string]string{}
	moduleScope := scope

	lines := strings.Split(programText, "\n")
	for lineNo, line := range lines {
		lineNum := lineNo + 1

		if m := fromImportRe.FindStringSubmatchIndex(line); m != nil {
			modulePath := line[m[2]:m[3]]
			symbolsRaw := line[m[4]:m[5]]
			res.Imports = append(res.Imports, Import{
				ModulePath: modulePath,
				Symbols:    splitIdentList(symbolsRaw),
				Line:       lineNum,
				Column:     m[2] + 1,
			})
			for _, sym := range splitIdentList(symbolsRaw) {
				if sym != "" {
					scope[sym] = ""
				}
			}
			continue
		}
		if m := importRe.FindStringSubmatchIndex(line); m != nil {
			res.Imports = append(res.Imports, Import{
				ModulePath: line[m[2]:m[3]],
				Line:       lineNum,
				Column:     m[2] + 1,
			})
			continue
		}

		if m := defRe.FindStringSubmatchIndex(line); m != nil {
			scope = make(map[string]string, len(moduleScope))
			for k, v := range moduleScope {
				scope[k] = v
			}
			params := line[m[2]:m[3]]
			for _, p := range splitTopLevelArgs(params) {
				name, typ, ok := splitAnnotation(p)
				if ok {
					scope[name] = typ
				}
			}
			continue
		}

		line = analyseAssignments(line, lineNum, scope, &res)
		analyseCalls(line, lineNum, scope, &res)
		analyseAttributes(line, lineNum, scope, &res)
	}

	sortResult(&res)
	return res
}

// analyseAssignments records `lhs = Class(...)` instantiations and returns the
// line with each recorded RHS call blanked out, so analyseCalls never
// re-discovers the same call as a bare, unassigned expression.
func analyseAssignments(line string, lineNum int, scope map[string]string, res *AnalysisResult) string {
	masked := []byte(line)
	for _, m := range assignRe.FindAllStringSubmatchIndex(line, -1) {
		lhs := line[m[2]:m[3]]
		callee := line[m[4]:m[5]]
		args := line[m[6]:m[7]]

		className, moduleHint := splitQualified(callee)
		if !isClassName(className) {
			continue
		}
		scope[lhs] = className
		res.ClassInstantiations = append(res.ClassInstantiations, ClassInstantiation{
			ClassName:  className,
			ModuleHint: moduleHint,
			Line:       lineNum,
			Column:     m[4] + 1,
		})
		_ = args
		for i := m[4]; i < m[1]; i++ {
			masked[i] = ' '
		}
	}
	return string(masked)
}

func analyseCalls(line string, lineNum int, scope map[string]string, res *AnalysisResult) {
	masked := []byte(line)
	for _, m := range chainedCallRe.FindAllStringSubmatchIndex(line, -1) {
		base := line[m[2]:m[3]]
		methodName := line[m[6]:m[7]]
		methodArgs := line[m[8]:m[9]]

		hint := UnknownReceiver
		if isClassName(base) {
			hint = base
			res.ClassInstantiations = append(res.ClassInstantiations, ClassInstantiation{
				ClassName: base,
				Line:      lineNum,
				Column:    m[2] + 1,
			})
		} else if t, ok := scope[base]; ok && t != "" {
			hint = t
		}
		positional, keyword := classifyArgs(methodArgs)
		res.MethodCalls = append(res.MethodCalls, MethodCall{
			ReceiverTypeHint: hint,
			MethodName:       methodName,
			PositionalArgc:   positional,
			KeywordArgs:      keyword,
			Line:             lineNum,
			Column:           m[6] + 1,
		})
		for i := m[0]; i < m[1]; i++ {
			masked[i] = ' '
		}
	}
	line = string(masked)

	for _, m := range callRe.FindAllStringSubmatchIndex(line, -1) {
		callee := line[m[2]:m[3]]
		args := line[m[4]:m[5]]
		col := m[2] + 1

		if strings.Contains(callee, ".") {
			idx := strings.LastIndex(callee, ".")
			receiver := callee[:idx]
			method := callee[idx+1:]

			// Assigned calls such as `x = pkg.Class(...)` were already
			// recorded and masked out by analyseAssignments. A call whose
			// receiver is itself a capitalised name with no bound type
			// (e.g. `Class.method(...)`) is skipped, not recorded.
			receiverType, known := scope[receiver]
			hint := UnknownReceiver
			if known && receiverType != "" {
				hint = receiverType
			} else if isClassName(receiver) {
				continue
			}
			positional, keyword := classifyArgs(args)
			res.MethodCalls = append(res.MethodCalls, MethodCall{
				ReceiverTypeHint: hint,
				MethodName:       method,
				PositionalArgc:   positional,
				KeywordArgs:      keyword,
				Line:             lineNum,
				Column:           col,
			})
			continue
		}

		if isClassName(callee) {
			// Assigned instantiations were already recorded (and masked out
			// of this line) by analyseAssignments; what's left here is a
			// bare `Class(...)` expression statement.
			res.ClassInstantiations = append(res.ClassInstantiations, ClassInstantiation{
				ClassName: callee,
				Line:      lineNum,
				Column:    col,
			})
			continue
		}

		positional, keyword := classifyArgs(args)
		res.FunctionCalls = append(res.FunctionCalls, FunctionCall{
			FunctionName:   callee,
			PositionalArgc: positional,
			KeywordArgs:    keyword,
			Line:           lineNum,
			Column:         col,
		})
	}
}

func analyseAttributes(line string, lineNum int, scope map[string]string, res *AnalysisResult) {
	for _, m := range attrRe.FindAllStringSubmatchIndex(line, -1) {
		receiver := line[m[2]:m[3]]
		attr := line[m[4]:m[5]]
		col := m[2] + 1

		// Skip sites immediately followed by '(' — those are method calls,
		// already recorded by analyseCalls.
		rest := line[m[5]:]
		if strings.HasPrefix(strings.TrimLeft(rest, " "), "(") {
			continue
		}
		if isClassName(receiver) {
			continue
		}
		hint, known := scope[receiver]
		if !known || hint == "" {
			hint = UnknownReceiver
		}
		res.AttributeAccesses = append(res.AttributeAccesses, AttributeAccess{
			ReceiverTypeHint: hint,
			AttributeName:    attr,
			Line:             lineNum,
			Column:           col,
		})
	}
}

func isClassName(s string) bool {
	if s == "" {
		return false
	}
	r := rune(s[0])
	return r >= 'A' && r <= 'Z'
}

func splitQualified(s string) (name, moduleHint string) {
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return s, ""
	}
	return s[idx+1:], s[:idx]
}

func splitIdentList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitTopLevelArgs splits a parenthesised argument list on commas that are
// not nested inside (), [] or {}.
func splitTopLevelArgs(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// splitAnnotation parses one `name` or `name: Type` or `name: Type = default`
// parameter entry.
func splitAnnotation(p string) (name, typ string, ok bool) {
	p = strings.TrimSpace(p)
	if p == "" || p == "self" {
		return "", "", false
	}
	if eq := strings.Index(p, "="); eq >= 0 {
		p = strings.TrimSpace(p[:eq])
	}
	parts := strings.SplitN(p, ":", 2)
	name = strings.TrimSpace(parts[0])
	if name == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		typ = strings.TrimSpace(parts[1])
	}
	return name, typ, true
}

// classifyArgs splits a call's raw argument text into a positional count and
// an ordered list of keyword-argument names.
func classifyArgs(raw string) (positional int, keywords []string) {
	for _, arg := range splitTopLevelArgs(raw) {
		if arg == "" {
			continue
		}
		if m := kwArgRe.FindStringSubmatch(arg); m != nil {
			keywords = append(keywords, m[1])
			continue
		}
		positional++
	}
	return positional, keywords
}

func sortResult(res *AnalysisResult) {
	sort.Slice(res.Imports, func(i, j int) bool { return lessPos(res.Imports[i].Line, res.Imports[i].Column, res.Imports[j].Line, res.Imports[j].Column) })
	sort.Slice(res.ClassInstantiations, func(i, j int) bool {
		return lessPos(res.ClassInstantiations[i].Line, res.ClassInstantiations[i].Column, res.ClassInstantiations[j].Line, res.ClassInstantiations[j].Column)
	})
	sort.Slice(res.MethodCalls, func(i, j int) bool {
		return lessPos(res.MethodCalls[i].Line, res.MethodCalls[i].Column, res.MethodCalls[j].Line, res.MethodCalls[j].Column)
	})
	sort.Slice(res.FunctionCalls, func(i, j int) bool {
		return lessPos(res.FunctionCalls[i].Line, res.FunctionCalls[i].Column, res.FunctionCalls[j].Line, res.FunctionCalls[j].Column)
	})
	sort.Slice(res.AttributeAccesses, func(i, j int) bool {
		return lessPos(res.AttributeAccesses[i].Line, res.AttributeAccesses[i].Column, res.AttributeAccesses[j].Line, res.AttributeAccesses[j].Column)
	})
}

func lessPos(l1, c1, l2, c2 int) bool {
	if l1 != l2 {
		return l1 < l2
	}
	return c1 < c2
}

// References flattens every category into one (line, column)-ordered list,
// the shape the Validator and Hallucination Detector actually iterate.
func (r AnalysisResult) References() []Reference {
	var out []Reference
	for _, imp := range r.Imports {
		out = append(out, Reference{Kind: codegraph.RefImport, Name: imp.ModulePath, Line: imp.Line, Column: imp.Column})
	}
	for _, ci := range r.ClassInstantiations {
		out = append(out, Reference{Kind: codegraph.RefClass, Name: ci.ClassName, ModuleHint: ci.ModuleHint, Line: ci.Line, Column: ci.Column})
	}
	for _, mc := range r.MethodCalls {
		out = append(out, Reference{
			Kind: codegraph.RefMethod, Name: mc.MethodName, ReceiverTypeHint: mc.ReceiverTypeHint,
			PositionalArgc: mc.PositionalArgc, KeywordArgs: mc.KeywordArgs, Line: mc.Line, Column: mc.Column,
		})
	}
	for _, fc := range r.FunctionCalls {
		out = append(out, Reference{
			Kind: codegraph.RefFunction, Name: fc.FunctionName, ModuleHint: fc.ModuleHint,
			PositionalArgc: fc.PositionalArgc, KeywordArgs: fc.KeywordArgs, Line: fc.Line, Column: fc.Column,
		})
	}
	for _, aa := range r.AttributeAccesses {
		out = append(out, Reference{
			Kind: codegraph.RefAttribute, Name: aa.AttributeName, ReceiverTypeHint: aa.ReceiverTypeHint,
			Line: aa.Line, Column: aa.Column,
		})
	}
	sort.Slice(out, func(i, j int) bool { return lessPos(out[i].Line, out[i].Column, out[j].Line, out[j].Column) })
	return out
}
