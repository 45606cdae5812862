package quality

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GateResult represents the outcome of a quality gate check.
type GateResult int

const (
	// GatePass indicates the gate check succeeded.
	GatePass GateResult = iota
	// GateFail indicates the gate command ran and reported problems.
	GateFail
	// GateSkip indicates the gate does not apply to the workspace.
	GateSkip
	// GateError indicates the gate could not run to completion.
	GateError
)

// String returns the string representation of a GateResult.
func (r GateResult) String() string {
	switch r {
	case GatePass:
		return "pass"
	case GateFail:
		return "fail"
	case GateSkip:
		return "skip"
	case GateError:
		return "error"
	default:
		return "unknown"
	}
}

// Gate names, in the order they run.
const (
	GateBuild     = "build"
	GateTest      = "test"
	GateLint      = "lint"
	GateTypecheck = "typecheck"
)

var gateOrder = []string{GateBuild, GateTest, GateLint, GateTypecheck}

// GateOutput contains the result of running a single quality gate.
type GateOutput struct {
	Gate     string
	Result   GateResult
	Output   string
	Duration time.Duration
	// Tests holds parsed test counts for the test gate, when available.
	Tests *TestSummary
}

// GateRunner runs quality gates against a workspace.
type GateRunner interface {
	RunGates(ctx context.Context) ([]*GateOutput, error)
}

var _ GateRunner = (*QualityGates)(nil)

// gatePlan is the resolved command for one gate. A non-empty skip means the
// gate does not apply and carries the reason.
type gatePlan struct {
	args  []string
	skip  string
	parse func(output string) *TestSummary
}

func skipPlan(reason string) gatePlan { return gatePlan{skip: reason} }

func runPlan(args ...string) gatePlan { return gatePlan{args: args} }

// toolchain knows how to build, test, lint and typecheck one kind of project.
type toolchain struct {
	name    string
	markers []string
	plans   map[string]func(q *QualityGates) gatePlan
}

// toolchains are checked in order; the first whose marker file exists wins.
var toolchains = []toolchain{
	{
		name:    "go",
		markers: []string{"go.mod"},
		plans: map[string]func(q *QualityGates) gatePlan{
			GateBuild: func(*QualityGates) gatePlan { return runPlan("go", "build", "./...") },
			GateTest: func(q *QualityGates) gatePlan {
				if !q.hasGoTestFiles() {
					return skipPlan("no Go test files found")
				}
				p := runPlan("go", "test", "-v", "-cover", "./...")
				p.parse = parseGoTestOutput
				return p
			},
			GateLint: func(q *QualityGates) gatePlan {
				if q.commandExists("golangci-lint") {
					return runPlan("golangci-lint", "run", "./...")
				}
				return runPlan("go", "vet", "./...")
			},
			GateTypecheck: func(*QualityGates) gatePlan { return skipPlan("covered by the build gate") },
		},
	},
	{
		name:    "node",
		markers: []string{"package.json"},
		plans: map[string]func(q *QualityGates) gatePlan{
			GateBuild: npmScript("build"),
			GateTest:  npmScript("test"),
			GateLint:  npmScript("lint"),
			GateTypecheck: func(q *QualityGates) gatePlan {
				if !q.exists("tsconfig.json") {
					return skipPlan("not a TypeScript project")
				}
				return runPlan("npx", "tsc", "--noEmit")
			},
		},
	},
	{
		name:    "python",
		markers: []string{"pyproject.toml", "setup.py", "requirements.txt"},
		plans: map[string]func(q *QualityGates) gatePlan{
			GateBuild: func(*QualityGates) gatePlan { return skipPlan("no build step for Python") },
			GateTest: func(q *QualityGates) gatePlan {
				if !q.hasPythonTests() {
					return skipPlan("no Python test files found")
				}
				return runPlan("python", "-m", "pytest")
			},
			GateLint: func(q *QualityGates) gatePlan {
				switch {
				case q.commandExists("ruff"):
					return runPlan("ruff", "check", ".")
				case q.commandExists("flake8"):
					return runPlan("flake8", ".")
				}
				return skipPlan("no Python linter (ruff, flake8) found")
			},
			GateTypecheck: func(q *QualityGates) gatePlan {
				if !q.commandExists("mypy") {
					return skipPlan("mypy not found")
				}
				return runPlan("mypy", ".")
			},
		},
	},
}

func npmScript(script string) func(q *QualityGates) gatePlan {
	return func(q *QualityGates) gatePlan {
		if !q.hasNodeScript(script) {
			return skipPlan("no " + script + " script in package.json")
		}
		if script == "test" {
			return runPlan("npm", "test")
		}
		return runPlan("npm", "run", script)
	}
}

// QualityGates runs the enabled gates for whatever toolchain the work
// directory uses.
type QualityGates struct {
	enabled map[string]bool
	workDir string
	timeout time.Duration
}

// NewQualityGates creates a QualityGates runner for the given work directory.
// All gates start disabled.
func NewQualityGates(workDir string) *QualityGates {
	return &QualityGates{
		enabled: make(map[string]bool),
		workDir: workDir,
		timeout: 5 * time.Minute,
	}
}

// EnableTest enables or disables the test gate.
func (q *QualityGates) EnableTest(enabled bool) { q.enabled[GateTest] = enabled }

// EnableBuild enables or disables the build gate.
func (q *QualityGates) EnableBuild(enabled bool) { q.enabled[GateBuild] = enabled }

// EnableLint enables or disables the lint gate.
func (q *QualityGates) EnableLint(enabled bool) { q.enabled[GateLint] = enabled }

// EnableTypecheck enables or disables the typecheck gate.
func (q *QualityGates) EnableTypecheck(enabled bool) { q.enabled[GateTypecheck] = enabled }

// SetTimeout sets the timeout for each individual gate.
func (q *QualityGates) SetTimeout(d time.Duration) {
	q.timeout = d
}

// RunGates runs the enabled gates in order. Gates that do not apply to the
// detected toolchain report GateSkip.
func (q *QualityGates) RunGates(ctx context.Context) ([]*GateOutput, error) {
	tc := q.detect()

	var results []*GateOutput
	for _, gate := range gateOrder {
		if !q.enabled[gate] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, q.runGate(ctx, tc, gate))
	}
	return results, ctx.Err()
}

func (q *QualityGates) runGate(ctx context.Context, tc *toolchain, gate string) *GateOutput {
	output := &GateOutput{Gate: gate}
	start := time.Now()
	defer func() { output.Duration = time.Since(start) }()

	if tc == nil {
		output.Result = GateSkip
		output.Output = "unknown project type, cannot run " + gate
		return output
	}

	plan := tc.plans[gate](q)
	if plan.skip != "" {
		output.Result = GateSkip
		output.Output = plan.skip
		return output
	}

	q.runCommand(ctx, output, plan.args[0], plan.args[1:]...)
	if plan.parse != nil {
		output.Tests = plan.parse(output.Output)
	}
	return output
}

// runCommand executes a command under the gate timeout and fills in the
// result and combined output.
func (q *QualityGates) runCommand(ctx context.Context, output *GateOutput, name string, args ...string) *GateOutput {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = q.workDir
	combined, err := cmd.CombinedOutput()
	output.Output = string(combined)

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		output.Result = GateError
		output.Output = "command timed out after " + q.timeout.String() + ": " + output.Output
	case errors.As(err, &exitErr):
		output.Result = GateFail
	case err != nil:
		output.Result = GateError
		output.Output = "error running " + name + ": " + err.Error()
	default:
		output.Result = GatePass
	}
	return output
}

func (q *QualityGates) detect() *toolchain {
	for i := range toolchains {
		for _, marker := range toolchains[i].markers {
			if q.exists(marker) {
				return &toolchains[i]
			}
		}
	}
	return nil
}

// detectProjectType names the detected toolchain, or "unknown".
func (q *QualityGates) detectProjectType() string {
	if tc := q.detect(); tc != nil {
		return tc.name
	}
	return "unknown"
}

func (q *QualityGates) exists(name string) bool {
	_, err := os.Stat(filepath.Join(q.workDir, name))
	return err == nil
}

// hasGoTestFiles reports whether any _test.go file exists outside vendor
// and hidden directories.
func (q *QualityGates) hasGoTestFiles() bool {
	found := false
	_ = filepath.WalkDir(q.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != q.workDir && (d.Name() == "vendor" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), "_test.go") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// hasNodeScript reports whether package.json defines the named script.
func (q *QualityGates) hasNodeScript(script string) bool {
	content, err := os.ReadFile(filepath.Join(q.workDir, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts[script]
	return ok
}

func (q *QualityGates) hasPythonTests() bool {
	if q.exists("tests") {
		return true
	}
	matches, _ := filepath.Glob(filepath.Join(q.workDir, "test_*.py"))
	return len(matches) > 0
}

func (q *QualityGates) commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
