package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/signalnine/clutterbench/internal/config"
)

const (
	manifestFile = "sweep.json"
	runPrefix    = "run-"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// SweepDir is where one sweep's manifest, checkpoints and report live.
func SweepDir(runDir string, s config.Sweep) string {
	return filepath.Join(runDir, "sweeps", filepath.FromSlash(s.Name()))
}

func WriteManifest(sweepDir string, m *Manifest) error {
	return writeJSON(filepath.Join(sweepDir, manifestFile), m)
}

func ReadManifest(sweepDir string) (*Manifest, error) {
	var m Manifest
	if err := readJSON(filepath.Join(sweepDir, manifestFile), &m); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return &m, nil
}

// WriteRun checkpoints one completed run. The file appears atomically so a
// crash never leaves a partial checkpoint behind.
func WriteRun(sweepDir string, p *RunPair) error {
	return writeJSON(filepath.Join(sweepDir, fmt.Sprintf("%s%d.json", runPrefix, p.Run)), p)
}

// ReadRuns loads every run checkpoint in sweepDir, sorted by run index.
func ReadRuns(sweepDir string) ([]RunPair, error) {
	entries, err := os.ReadDir(sweepDir)
	if err != nil {
		return nil, fmt.Errorf("reading sweep dir: %w", err)
	}
	var pairs []RunPair
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, runPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, runPrefix), ".json")); err != nil {
			continue
		}
		var p RunPair
		if err := readJSON(filepath.Join(sweepDir, name), &p); err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		pairs = append(pairs, p)
	}
	SortRuns(pairs)
	return pairs, nil
}

// SortRuns orders pairs by run index.
func SortRuns(pairs []RunPair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Run < pairs[j].Run })
}

// FindSweepDirs returns every directory under root holding a manifest.
func FindSweepDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == manifestFile {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}
