// Package rundir implements the run directory manager of §4.6: the
// on-disk layout for a single run, and glob-based input staging.
package rundir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
)

// Manager creates and lays out per-run directories under baseDir.
type Manager struct {
	baseDir string
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// Layout is the set of paths inside one run directory.
type Layout struct {
	Root    string
	Inputs  string
	Outputs string
	Logs    string
	Tmp     string
}

func (m *Manager) layout(workflowName, version, runID string) Layout {
	root := filepath.Join(m.baseDir, "runs", workflowName, version, runID)
	return Layout{
		Root:    root,
		Inputs:  filepath.Join(root, "inputs"),
		Outputs: filepath.Join(root, "outputs"),
		Logs:    filepath.Join(root, "logs"),
		Tmp:     filepath.Join(root, "tmp"),
	}
}

// Create builds base_dir/runs/<name>/<version>/<run_id>/{inputs,outputs,logs,tmp}.
func (m *Manager) Create(workflowName, version, runID string) (Layout, error) {
	l := m.layout(workflowName, version, runID)
	for _, dir := range []string{l.Root, l.Inputs, l.Outputs, l.Logs, l.Tmp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, run.NewInputStagingError("create run directory %s: %v", dir, err)
		}
	}
	return l, nil
}

// SnapshotWorkflow writes the validated, resolved workflow document to
// <run_dir>/workflow.yaml before the first step dispatches, so the run
// stays reproducible even if the source file changes later (restored from
// the source's copy-on-run behaviour, see SPEC_FULL.md §9).
func (m *Manager) SnapshotWorkflow(root string, data []byte) error {
	return os.WriteFile(filepath.Join(root, "workflow.yaml"), data, 0o644)
}

// LogPath returns the log file path for a step.
func (l Layout) LogPath(stepName string) string {
	return filepath.Join(l.Logs, stepName+".log")
}

// StageInputs expands each declared input's glob pattern against cwd and
// materialises every match into inputs/, preferring a symbolic link and
// falling back to a byte-wise copy when linking is unsupported. Absolute
// paths are used as-is without expansion. Returns the resolved binding for
// each input name (the staged path, or space-joined paths for multi-match
// globs).
func (m *Manager) StageInputs(l Layout, cwd string, declared map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(declared))
	for name, pattern := range declared {
		matches, err := m.expand(cwd, pattern)
		if err != nil {
			return nil, run.NewInputStagingError("input %s: %v", name, err)
		}
		if len(matches) == 0 {
			return nil, run.NewInputStagingError("input %s: glob %q matched no files", name, pattern)
		}

		staged := make([]string, 0, len(matches))
		for _, src := range matches {
			dst := filepath.Join(l.Inputs, filepath.Base(src))
			if err := materialise(src, dst); err != nil {
				return nil, run.NewInputStagingError("input %s: %v", name, err)
			}
			staged = append(staged, dst)
		}
		if len(staged) == 1 {
			resolved[name] = staged[0]
		} else {
			resolved[name] = joinPaths(staged)
		}
	}
	return resolved, nil
}

func (m *Manager) expand(cwd, pattern string) ([]string, error) {
	if filepath.IsAbs(pattern) {
		if _, err := os.Stat(pattern); err != nil {
			return nil, fmt.Errorf("unreadable path %s: %w", pattern, err)
		}
		return []string{pattern}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(cwd), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	out := make([]string, len(matches))
	for i, rel := range matches {
		out[i] = filepath.Join(cwd, rel)
	}
	return out, nil
}

// materialise links src into dst, falling back to a byte copy when the
// filesystem doesn't support symlinks (§4.6).
func materialise(src, dst string) error {
	if abs, err := filepath.Abs(src); err == nil {
		src = abs
	}
	if err := os.Symlink(src, dst); err == nil {
		return nil
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func joinPaths(paths []string) string {
	out := paths[0]
	for _, p := range paths[1:] {
		out += " " + p
	}
	return out
}

// CleanTmp best-effort-removes the contents of tmp/ (not the directory
// itself) once the scheduler returns, per the source's scratch-directory
// lifecycle (SPEC_FULL.md §9). Absence of anything to clean is not an
// error.
func (m *Manager) CleanTmp(l Layout) {
	entries, err := os.ReadDir(l.Tmp)
	if err != nil {
		return
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(l.Tmp, e.Name()))
	}
}

// DiscoverOutputs enumerates files under outputs/ whose relative paths are
// not in since (the snapshot taken before the step ran), used by the step
// runner's best-effort output discovery (§4.4 step 6).
func (m *Manager) DiscoverOutputs(l Layout, since map[string]struct{}) ([]string, error) {
	var produced []string
	err := filepath.WalkDir(l.Outputs, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(l.Outputs, path)
		if relErr != nil {
			return nil
		}
		if _, existed := since[rel]; !existed {
			produced = append(produced, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil // best-effort discovery: absence is not an error
	}
	return produced, nil
}

// SnapshotOutputs records the set of relative paths currently under
// outputs/, to diff against after a step runs.
func (m *Manager) SnapshotOutputs(l Layout) map[string]struct{} {
	seen := make(map[string]struct{})
	_ = filepath.WalkDir(l.Outputs, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(l.Outputs, path); relErr == nil {
			seen[rel] = struct{}{}
		}
		return nil
	})
	return seen
}
