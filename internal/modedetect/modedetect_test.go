package modedetect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gregory-lime/jacques/internal/session"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDetectModeRawScanPrecedence(t *testing.T) {
	// Enter at byte 61, Exit at byte 149, no later Enter: mode is default.
	path := writeTranscript(t,
		`{"message":{"role":"assistant","content":[{"type":"tool_use","name":"EnterPlanMode"}]}}`,
		`{"message":{"role":"assistant","content":[{"type":"tool_use","name":"ExitPlanMode"}]}}`,
	)

	d := New()
	mode, err := d.DetectMode(path)
	if err != nil {
		t.Fatalf("DetectMode: %v", err)
	}
	if mode != session.ModeDefault {
		t.Errorf("mode = %s, want default", mode)
	}
}

func TestDetectModeLaterEnterWinsOverParser(t *testing.T) {
	path := writeTranscript(t,
		`{"message":{"role":"assistant","content":[{"type":"tool_use","name":"EnterPlanMode"}]}}`,
		`{"message":{"role":"assistant","content":[{"type":"tool_use","name":"ExitPlanMode"}]}}`,
		`{"message":{"role":"assistant","content":[{"type":"tool_use","name":"EnterPlanMode"}]}}`,
	)

	d := New()
	mode, err := d.DetectMode(path)
	if err != nil {
		t.Fatalf("DetectMode: %v", err)
	}
	if mode != session.ModePlanning {
		t.Errorf("mode = %s, want planning", mode)
	}
}

func TestAnalyzeCollectsPlanRefsAndCompletions(t *testing.T) {
	data := []byte(`{"message":{"role":"assistant","content":[{"type":"tool_use","name":"EnterPlanMode"}]}}
{"message":{"role":"assistant","content":[{"type":"tool_use","name":"Write","input":{"file_path":"/p/.jacques/plans/rollout.md"}}]}}
{"message":{"role":"assistant","content":[{"type":"tool_use","name":"ExitPlanMode"}]}}
`)

	analysis := Analyze(data)
	if len(analysis.Completions) != 1 {
		t.Fatalf("Completions = %+v, want 1 entry", analysis.Completions)
	}
	if analysis.Completions[0].Title != "rollout" {
		t.Errorf("Completions[0].Title = %q, want rollout", analysis.Completions[0].Title)
	}
	if len(analysis.PlanRefs) != 1 {
		t.Errorf("PlanRefs = %+v, want 1 entry", analysis.PlanRefs)
	}
}

func TestIsPlanPathRejectsCodeFiles(t *testing.T) {
	if isPlanPath("/p/src/plan.ts") {
		t.Error("isPlanPath(.ts with 'plan') = true, want false")
	}
	if !isPlanPath("/p/docs/plan-notes.md") {
		t.Error("isPlanPath(plan-notes.md) = false, want true")
	}
	if !isPlanPath("/p/.jacques/plans/anything.md") {
		t.Error("isPlanPath(under .jacques/plans) = false, want true")
	}
}

func TestAnalyzeSkipsMalformedLines(t *testing.T) {
	data := []byte("not json\n{\"message\":{\"role\":\"assistant\",\"content\":[]}}\n")
	analysis := Analyze(data)
	if analysis.Mode != ModeDefault {
		t.Errorf("Mode = %s, want default", analysis.Mode)
	}
}
