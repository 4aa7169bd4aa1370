package filter

import (
	"encoding/json"
	"testing"

	"github.com/dsifry/metarelay/internal/event"
)

func checkRunEvent(conclusion string) *event.Event {
	return &event.Event{
		Repo:    "octo/widgets",
		Type:    event.TypeCheckRun,
		Action:  "completed",
		Payload: json.RawMessage(`{"conclusion":"` + conclusion + `"}`),
	}
}

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input   string
		path    string
		op      Op
		literal string
	}{
		{`payload.conclusion == 'failure'`, "payload.conclusion", OpEq, "failure"},
		{`action != "opened"`, "action", OpNeq, "opened"},
		{`ref=='main'`, "ref", OpEq, "main"},
		{`  actor  ==  'octocat'  `, "actor", OpEq, "octocat"},
		{`payload.check_run.name == ""`, "payload.check_run.name", OpEq, ""},
	}

	for _, tt := range tests {
		expr, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.input, err)
			continue
		}
		if expr.Path != tt.path || expr.Op != tt.op || expr.Literal != tt.literal {
			t.Errorf("Parse(%q) = %+v, want path=%q op=%v literal=%q",
				tt.input, expr, tt.path, tt.op, tt.literal)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"payload.conclusion",
		"payload.conclusion ==",
		"payload.conclusion == failure",
		"payload.conclusion == 'failure",
		"payload.conclusion = 'failure'",
		"== 'failure'",
		"payload. == 'failure'",
		"a == 'b' trailing",
		"a > 'b'",
	}

	for _, input := range inputs {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestEval_Equality(t *testing.T) {
	expr, err := Parse(`payload.conclusion == 'failure'`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !expr.Eval(checkRunEvent("failure")) {
		t.Error("expected match on conclusion=failure")
	}
	if expr.Eval(checkRunEvent("success")) {
		t.Error("expected no match on conclusion=success")
	}
}

func TestEval_Inequality(t *testing.T) {
	expr, err := Parse(`actor != 'bot'`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	e := &event.Event{Actor: "human"}
	if !expr.Eval(e) {
		t.Error("actor != 'bot' should match actor=human")
	}
	e.Actor = "bot"
	if expr.Eval(e) {
		t.Error("actor != 'bot' should not match actor=bot")
	}
}

func TestEval_MissingPathIsEmptyString(t *testing.T) {
	expr, err := Parse(`payload.nope == ''`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !expr.Eval(checkRunEvent("failure")) {
		t.Error("missing path should compare equal to empty string")
	}
}
