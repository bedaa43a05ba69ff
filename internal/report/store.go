package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

const (
	filePrefix = "report_"
	lockName   = ".kubesentry.lock"
)

// Store persists reports as one file set per run inside a directory.
type Store struct {
	Dir string
}

// Saved lists the files written for one report.
type Saved struct {
	TextPath string
	JSONPath string
	YAMLPath string
	DiffPath string // empty when there was no previous report
}

// Entry is a listing row for a stored report.
type Entry struct {
	Base      string
	RunID     string
	Timestamp time.Time
	Status    string
	Findings  int
}

// NewStore returns a store rooted at dir. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// FileBase is the per-run file name without extension. The UTC timestamp
// sorts lexically; the run id prefix keeps runs in the same second apart.
func FileBase(r *Report) string {
	id := strings.ReplaceAll(r.RunID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s%s_%s", filePrefix, r.Timestamp.UTC().Format("20060102T150405Z"), id)
}

// Save writes text, JSON and YAML renditions plus a unified diff against the
// previous text report. Concurrent savers are serialised with a lock file.
func (s *Store) Save(r *Report) (*Saved, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}

	fd, err := acquireFlock(filepath.Join(s.Dir, lockName))
	if err != nil {
		return nil, fmt.Errorf("lock reports dir: %w", err)
	}
	defer releaseFlock(fd)

	previous, err := s.latestBase()
	if err != nil {
		return nil, err
	}

	base := FileBase(r)
	saved := &Saved{
		TextPath: filepath.Join(s.Dir, base+".txt"),
		JSONPath: filepath.Join(s.Dir, base+".json"),
		YAMLPath: filepath.Join(s.Dir, base+".yaml"),
	}

	text := Text(r)
	if err := os.WriteFile(saved.TextPath, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("write text report: %w", err)
	}

	jsonData, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report JSON: %w", err)
	}
	if err := os.WriteFile(saved.JSONPath, jsonData, 0644); err != nil {
		return nil, fmt.Errorf("write JSON report: %w", err)
	}

	yamlData, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report YAML: %w", err)
	}
	if err := os.WriteFile(saved.YAMLPath, yamlData, 0644); err != nil {
		return nil, fmt.Errorf("write YAML report: %w", err)
	}

	if previous != "" && previous != base {
		prevText, err := os.ReadFile(filepath.Join(s.Dir, previous+".txt"))
		if err == nil {
			diff := difflib.UnifiedDiff{
				A:        difflib.SplitLines(string(prevText)),
				B:        difflib.SplitLines(text),
				FromFile: previous + ".txt",
				ToFile:   base + ".txt",
				Context:  3,
			}
			diffText, err := difflib.GetUnifiedDiffString(diff)
			if err != nil {
				return nil, fmt.Errorf("generate diff: %w", err)
			}
			saved.DiffPath = filepath.Join(s.Dir, base+".diff")
			if err := os.WriteFile(saved.DiffPath, []byte(diffText), 0644); err != nil {
				return nil, fmt.Errorf("write diff: %w", err)
			}
		}
	}

	return saved, nil
}

// List returns stored reports, oldest first.
func (s *Store) List() ([]Entry, error) {
	bases, err := s.bases()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(bases))
	for _, base := range bases {
		r, err := s.readJSON(base)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Base:      base,
			RunID:     r.RunID,
			Timestamp: r.Timestamp,
			Status:    r.Status,
			Findings:  len(r.Findings),
		})
	}
	return entries, nil
}

// Load finds a report by file base, run id or run id prefix. "latest"
// returns the newest report.
func (s *Store) Load(ref string) (*Report, error) {
	if ref == "" || ref == "latest" {
		base, err := s.latestBase()
		if err != nil {
			return nil, err
		}
		if base == "" {
			return nil, fmt.Errorf("no reports in %s", s.Dir)
		}
		return s.readJSON(base)
	}

	bases, err := s.bases()
	if err != nil {
		return nil, err
	}
	for _, base := range bases {
		if base == ref || strings.TrimSuffix(ref, ".json") == base {
			return s.readJSON(base)
		}
	}

	var matches []*Report
	for _, base := range bases {
		r, err := s.readJSON(base)
		if err != nil {
			continue
		}
		if strings.HasPrefix(r.RunID, ref) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("report %q not found in %s", ref, s.Dir)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("report %q is ambiguous (%d matches)", ref, len(matches))
	}
}

func (s *Store) readJSON(base string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", base, err)
	}
	return &r, nil
}

func (s *Store) bases() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, filePrefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	bases := make([]string, 0, len(matches))
	for _, m := range matches {
		bases = append(bases, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(bases)
	return bases, nil
}

func (s *Store) latestBase() (string, error) {
	bases, err := s.bases()
	if err != nil || len(bases) == 0 {
		return "", err
	}
	return bases[len(bases)-1], nil
}
