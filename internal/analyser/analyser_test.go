package analyser

import (
	"testing"
)

func TestAnalyseImports(t *testing.T) {
	res := Analyse("from r import C\nimport os\n")

	if len(res.Imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(res.Imports))
	}
	if res.Imports[0].ModulePath != "r" || len(res.Imports[0].Symbols) != 1 || res.Imports[0].Symbols[0] != "C" {
		t.Errorf("unexpected first import: %+v", res.Imports[0])
	}
	if res.Imports[1].ModulePath != "os" {
		t.Errorf("unexpected second import: %+v", res.Imports[1])
	}
}

func TestAnalyseChainedInstantiationAndMethodCall(t *testing.T) {
	program := "from r import C\nC().m(1)\nC().nope(2)\n"
	res := Analyse(program)

	if len(res.ClassInstantiations) != 2 {
		t.Fatalf("expected 2 class instantiations, got %d: %+v", len(res.ClassInstantiations), res.ClassInstantiations)
	}
	for _, ci := range res.ClassInstantiations {
		if ci.ClassName != "C" {
			t.Errorf("expected ClassName C, got %q", ci.ClassName)
		}
	}

	if len(res.MethodCalls) != 2 {
		t.Fatalf("expected 2 method calls, got %d: %+v", len(res.MethodCalls), res.MethodCalls)
	}
	if res.MethodCalls[0].MethodName != "m" || res.MethodCalls[0].ReceiverTypeHint != "C" {
		t.Errorf("unexpected first method call: %+v", res.MethodCalls[0])
	}
	if res.MethodCalls[0].PositionalArgc != 1 {
		t.Errorf("expected 1 positional arg, got %d", res.MethodCalls[0].PositionalArgc)
	}
	if res.MethodCalls[1].MethodName != "nope" || res.MethodCalls[1].ReceiverTypeHint != "C" {
		t.Errorf("unexpected second method call: %+v", res.MethodCalls[1])
	}
}

func TestAnalyseVariableBoundReceiver(t *testing.T) {
	program := "def run():\n    obj = Widget(1, kind=\"x\")\n    obj.render()\n    val = obj.color\n"
	res := Analyse(program)

	if len(res.ClassInstantiations) != 1 || res.ClassInstantiations[0].ClassName != "Widget" {
		t.Fatalf("unexpected instantiations: %+v", res.ClassInstantiations)
	}

	if len(res.MethodCalls) != 1 {
		t.Fatalf("expected 1 method call, got %d: %+v", len(res.MethodCalls), res.MethodCalls)
	}
	if res.MethodCalls[0].MethodName != "render" || res.MethodCalls[0].ReceiverTypeHint != "Widget" {
		t.Errorf("unexpected method call: %+v", res.MethodCalls[0])
	}

	if len(res.AttributeAccesses) != 1 {
		t.Fatalf("expected 1 attribute access, got %d: %+v", len(res.AttributeAccesses), res.AttributeAccesses)
	}
	if res.AttributeAccesses[0].AttributeName != "color" || res.AttributeAccesses[0].ReceiverTypeHint != "Widget" {
		t.Errorf("unexpected attribute access: %+v", res.AttributeAccesses[0])
	}
}

func TestAnalyseParameterAnnotationBindsReceiver(t *testing.T) {
	program := "def handle(self, x: int, item: Item):\n    item.process(x)\n"
	res := Analyse(program)

	if len(res.MethodCalls) != 1 {
		t.Fatalf("expected 1 method call, got %d: %+v", len(res.MethodCalls), res.MethodCalls)
	}
	if res.MethodCalls[0].ReceiverTypeHint != "Item" {
		t.Errorf("expected receiver type hint Item, got %q", res.MethodCalls[0].ReceiverTypeHint)
	}
}

func TestAnalyseUnknownReceiver(t *testing.T) {
	program := "def handle(thing):\n    thing.go()\n"
	res := Analyse(program)

	if len(res.MethodCalls) != 1 {
		t.Fatalf("expected 1 method call, got %d", len(res.MethodCalls))
	}
	if res.MethodCalls[0].ReceiverTypeHint != UnknownReceiver {
		t.Errorf("expected unknown receiver hint, got %q", res.MethodCalls[0].ReceiverTypeHint)
	}
}

func TestAnalyseFunctionCallWithKeywordArgs(t *testing.T) {
	program := "load(path, retries=3, verbose=True)\n"
	res := Analyse(program)

	if len(res.FunctionCalls) != 1 {
		t.Fatalf("expected 1 function call, got %d", len(res.FunctionCalls))
	}
	fc := res.FunctionCalls[0]
	if fc.FunctionName != "load" || fc.PositionalArgc != 1 {
		t.Errorf("unexpected function call: %+v", fc)
	}
	if len(fc.KeywordArgs) != 2 || fc.KeywordArgs[0] != "retries" || fc.KeywordArgs[1] != "verbose" {
		t.Errorf("unexpected keyword args: %+v", fc.KeywordArgs)
	}
}

func TestReferencesOrderedByLineAndColumn(t *testing.T) {
	program := "from r import C\nC().m(1)\n"
	res := Analyse(program)
	refs := res.References()

	for i := 1; i < len(refs); i++ {
		prev, cur := refs[i-1], refs[i]
		if cur.Line < prev.Line || (cur.Line == prev.Line && cur.Column < prev.Column) {
			t.Fatalf("references not ordered by (line, column): %+v then %+v", prev, cur)
		}
	}
}

func TestAnalyseEmptyProgram(t *testing.T) {
	res := Analyse("")
	if len(res.References()) != 0 {
		t.Errorf("expected no references for empty program, got %d", len(res.References()))
	}
}
