// Package knowledge serves sections of local markdown runbooks that match a
// classified issue.
package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaxResponseChars caps the text handed to the solution prompt.
const MaxResponseChars = 6000

// topic keywords: a query mentioning a trigger pulls sections whose slug
// mentions any of the section words.
var topics = []struct {
	triggers []string
	sections []string
}{
	{[]string{"image", "pull", "registry"}, []string{"image", "registry", "pull"}},
	{[]string{"memory", "cpu", "resource", "crash", "oom"}, []string{"resource", "memory", "cpu", "crash", "oom", "limit"}},
	{[]string{"network", "service", "dns", "connectivity"}, []string{"network", "service", "dns", "ingress"}},
	{[]string{"config", "env", "secret", "volume"}, []string{"config", "secret", "volume", "env"}},
	{[]string{"node", "pressure", "notready", "disk"}, []string{"node", "disk", "pressure"}},
	{[]string{"pending", "schedul"}, []string{"schedul", "pending", "capacity"}},
}

var incidentWords = []string{"incident", "escalation", "on-call", "oncall"}

// Query describes what knowledge is needed.
type Query struct {
	Type       string
	Severity   string
	Category   string
	Components []string
}

// Section is one header-delimited chunk of a document.
type Section struct {
	Document string
	Slug     string
	Content  string
}

// Engine holds parsed sections of every *.md file in a directory.
type Engine struct {
	sections []Section
}

// Load reads every markdown file in dir. A missing directory is an error;
// an empty one yields an engine that never matches.
func Load(dir string) (*Engine, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("list knowledge dir: %w", err)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("knowledge dir: %w", err)
	}
	sort.Strings(files)

	e := &Engine{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		doc := strings.TrimSuffix(filepath.Base(f), ".md")
		e.sections = append(e.sections, SplitSections(doc, string(data))...)
	}
	return e, nil
}

// NewEngine builds an engine from already parsed sections.
func NewEngine(sections []Section) *Engine {
	return &Engine{sections: append([]Section(nil), sections...)}
}

// Len is the number of sections loaded.
func (e *Engine) Len() int {
	return len(e.sections)
}

// SplitSections cuts markdown at every header line. Text before the first
// header becomes the "introduction" section.
func SplitSections(doc, content string) []Section {
	var out []Section
	slug := "introduction"
	var cur []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(cur, "\n"))
		if text != "" {
			out = append(out, Section{Document: doc, Slug: slug, Content: text})
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			slug = Slugify(strings.TrimLeft(line, "#"))
			cur = []string{line}
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return out
}

// Slugify lowercases a header and joins words with underscores.
func Slugify(header string) string {
	return strings.Join(strings.Fields(strings.ToLower(header)), "_")
}

// Lookup returns the matching sections joined as text, or "" when nothing
// is loaded.
func (e *Engine) Lookup(q Query) string {
	if len(e.sections) == 0 {
		return ""
	}

	haystack := strings.ToLower(strings.Join(append([]string{q.Type, q.Category}, q.Components...), " "))

	var words []string
	for _, t := range topics {
		if containsAny(haystack, t.triggers) {
			words = append(words, t.sections...)
		}
	}
	sev := strings.ToLower(q.Severity)
	if sev == "high" || sev == "critical" {
		words = append(words, incidentWords...)
	}

	var picked []Section
	seen := make(map[string]bool)
	for _, s := range e.sections {
		key := s.Document + "/" + s.Slug
		if !seen[key] && containsAny(s.Slug, words) {
			seen[key] = true
			picked = append(picked, s)
		}
	}

	if len(picked) == 0 {
		for _, s := range e.sections {
			if containsAny(s.Slug, []string{"troubleshoot", "general"}) {
				picked = append(picked, s)
			}
		}
	}

	return format(picked)
}

func format(sections []Section) string {
	var sb strings.Builder
	for _, s := range sections {
		block := fmt.Sprintf("[%s]\n%s\n\n", s.Document, s.Content)
		if sb.Len()+len(block) > MaxResponseChars {
			break
		}
		sb.WriteString(block)
	}
	return strings.TrimSpace(sb.String())
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}
