// Package modedetect implements the Mode Detector (§4.5): on-demand
// transcript scanning that recomputes a session's planning/execution
// posture and surfaces plan references for the notification engine.
package modedetect

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gregory-lime/jacques/internal/session"
)

var (
	enterRe   = regexp.MustCompile(`"name"\s*:\s*"EnterPlanMode"`)
	exitRe    = regexp.MustCompile(`"name"\s*:\s*"ExitPlanMode"`)
	triggerRe = regexp.MustCompile(`(?i)(implement the following plan:|here is the plan:|follow this plan:)`)
	headingRe = regexp.MustCompile(`(?m)^#{1,6} `)
)

var rejectedExt = map[string]bool{
	".ts": true, ".js": true, ".py": true, ".json": true,
	".yaml": true, ".yml": true, ".sh": true, ".css": true, ".html": true,
}

// DetectedMode is the richer mode vocabulary the parsed-entry scan produces,
// beyond what the registry's session.Mode enum needs to track.
type DetectedMode string

const (
	ModePlanning  DetectedMode = "planning"
	ModeExecution DetectedMode = "execution"
	ModeDefault   DetectedMode = "default"
)

// PlanRef is a reference to a written or agent-tracked plan document.
type PlanRef struct {
	Title  string
	Source string // "write" or "agent"
}

// PlanCompletion records one closed EnterPlanMode -> ExitPlanMode interval.
type PlanCompletion struct {
	Title string
}

// Analysis is the full result of scanning a transcript (§4.5).
type Analysis struct {
	Mode        DetectedMode
	PlanRefs    []PlanRef
	Completions []PlanCompletion
}

// Detector implements session.ModeDetector.
type Detector struct{}

// New constructs a Detector.
func New() *Detector {
	return &Detector{}
}

// DetectMode implements session.ModeDetector. It applies the raw text scan
// first (§4.5 step 1) since the parsed view can drop a dangling
// ExitPlanMode bundled with real edits; only when that's inconclusive does
// it fall back to the parsed-entry scan.
func (d *Detector) DetectMode(transcriptPath string) (session.Mode, error) {
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return "", err
	}

	if lastEnterOffset(data) > lastExitOffset(data) {
		return session.ModePlanning, nil
	}

	analysis := Analyze(data)
	if analysis.Mode == ModePlanning {
		return session.ModePlanning, nil
	}
	return session.ModeDefault, nil
}

func lastEnterOffset(data []byte) int {
	return lastMatchOffset(enterRe, data)
}

func lastExitOffset(data []byte) int {
	return lastMatchOffset(exitRe, data)
}

func lastMatchOffset(re *regexp.Regexp, data []byte) int {
	locs := re.FindAllIndex(data, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][0]
}

type entry struct {
	Message   *message `json:"message"`
	AgentType string   `json:"agentType"`
	AgentID   string   `json:"agentId"`
	Title     string   `json:"title"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// Analyze runs the parsed-entry mode-and-plans detection over a transcript
// JSONL byte stream (§4.5). Malformed lines are skipped rather than
// treated as a fatal error — a partially-written transcript shouldn't
// block mode detection on the lines that parse fine.
func Analyze(data []byte) *Analysis {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var inPlan bool
	var sawExitAfterEnter bool
	var sawAnyEnter bool
	var intervalRefs []PlanRef
	var planRefs []PlanRef
	var completions []PlanCompletion
	seenAgentIDs := make(map[string]bool)
	pendingTrigger := false
	mode := ModeDefault

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}

		if e.AgentType == "Plan" && e.AgentID != "" && !seenAgentIDs[e.AgentID] {
			seenAgentIDs[e.AgentID] = true
			ref := PlanRef{Title: agentRefTitle(e), Source: "agent"}
			planRefs = append(planRefs, ref)
			if inPlan {
				intervalRefs = append(intervalRefs, ref)
			}
		}

		if e.Message == nil {
			continue
		}

		for _, block := range e.Message.Content {
			switch block.Type {
			case "tool_use":
				switch block.Name {
				case "EnterPlanMode":
					inPlan = true
					sawAnyEnter = true
					intervalRefs = nil
				case "ExitPlanMode":
					if inPlan {
						completions = append(completions, PlanCompletion{Title: completionTitle(intervalRefs)})
					}
					inPlan = false
					sawExitAfterEnter = true
				case "Write":
					if path, ok := block.Input["file_path"].(string); ok && isPlanPath(path) {
						ref := PlanRef{Title: leafTitle(path), Source: "write"}
						planRefs = append(planRefs, ref)
						if inPlan {
							intervalRefs = append(intervalRefs, ref)
						}
					}
				}
			case "text":
				if e.Message.Role == "user" && triggerRe.MatchString(block.Text) {
					pendingTrigger = true
				} else if pendingTrigger && len(block.Text) >= 100 && headingRe.MatchString(block.Text) {
					mode = ModeExecution
					pendingTrigger = false
				}
			}
		}
	}

	if inPlan {
		mode = ModePlanning
	} else if mode != ModeExecution && sawAnyEnter && sawExitAfterEnter {
		mode = ModeDefault
	}

	return &Analysis{Mode: mode, PlanRefs: planRefs, Completions: completions}
}

func agentRefTitle(e entry) string {
	if e.Title != "" {
		return e.Title
	}
	return "Plan Ready"
}

func completionTitle(refs []PlanRef) string {
	for _, ref := range refs {
		if ref.Source == "write" {
			return ref.Title
		}
	}
	for _, ref := range refs {
		if ref.Source == "agent" {
			return ref.Title
		}
	}
	return "Plan Ready"
}

func leafTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isPlanPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if strings.HasSuffix(path, ".md") && strings.Contains(path, ".jacques/plans/") {
		return true
	}
	if rejectedExt[ext] {
		return false
	}
	return strings.Contains(strings.ToLower(filepath.Base(path)), "plan")
}
