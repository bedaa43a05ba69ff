package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runbook = `Intro text for the runbook.

# Container Image Policy
Only pull from registry.internal.

## CrashLoopBackOff Investigation
Check logs with kubectl logs --previous.

## Incident Escalation
Page the on-call SRE for critical issues.

# General Troubleshooting
Start with kubectl describe.
`

func TestSplitSections(t *testing.T) {
	sections := SplitSections("runbook", runbook)
	require.Len(t, sections, 5)
	assert.Equal(t, "introduction", sections[0].Slug)
	assert.Equal(t, "container_image_policy", sections[1].Slug)
	assert.Equal(t, "crashloopbackoff_investigation", sections[2].Slug)
	assert.Contains(t, sections[2].Content, "kubectl logs --previous")
	assert.Equal(t, "runbook", sections[0].Document)
}

func TestLookup_ImageIssue(t *testing.T) {
	e := NewEngine(SplitSections("runbook", runbook))
	out := e.Lookup(Query{Type: "ImagePullBackOff", Severity: "medium", Category: "image"})
	assert.Contains(t, out, "registry.internal")
	assert.NotContains(t, out, "Page the on-call")
}

func TestLookup_CriticalIncludesIncidentProcedure(t *testing.T) {
	e := NewEngine(SplitSections("runbook", runbook))
	out := e.Lookup(Query{Type: "CrashLoopBackOff", Severity: "critical", Category: "resource"})
	assert.Contains(t, out, "kubectl logs --previous")
	assert.Contains(t, out, "Page the on-call")
}

func TestLookup_FallbackToGeneral(t *testing.T) {
	e := NewEngine(SplitSections("runbook", runbook))
	out := e.Lookup(Query{Type: "Mystery", Severity: "low"})
	assert.Contains(t, out, "kubectl describe")
}

func TestLookup_Empty(t *testing.T) {
	assert.Equal(t, "", NewEngine(nil).Lookup(Query{Type: "anything"}))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ops.md"), []byte(runbook), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("# ignored"), 0644))

	e, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, e.Len())

	_, err = Load(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
