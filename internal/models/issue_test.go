package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, ParseSeverity("CRITICAL"))
	assert.Equal(t, SeverityHigh, ParseSeverity(" high "))
	assert.Equal(t, SeverityMedium, ParseSeverity("medium"))
	assert.Equal(t, SeverityLow, ParseSeverity("low"))
	assert.Equal(t, SeverityInfo, ParseSeverity("info"))
	assert.Equal(t, SeverityUnknown, ParseSeverity("bogus"))
	assert.Equal(t, SeverityUnknown, ParseSeverity(""))
}

func TestSeverityRank(t *testing.T) {
	for i := 1; i < len(Severities); i++ {
		assert.True(t, Severities[i-1].MoreSevere(Severities[i]))
	}
	assert.True(t, SeverityInfo.MoreSevere(SeverityUnknown))
	assert.False(t, SeverityUnknown.Valid())
	assert.True(t, SeverityInfo.Valid())
}

func TestSortIssues_StableBySeverity(t *testing.T) {
	issues := []Issue{
		{Reason: "a", Severity: SeverityMedium},
		{Reason: "b", Severity: SeverityCritical},
		{Reason: "c", Severity: SeverityMedium},
		{Reason: "d", Severity: SeverityHigh},
		{Reason: "e", Severity: SeverityCritical},
	}

	sorted := SortIssues(issues)

	var order []string
	for _, i := range sorted {
		order = append(order, i.Reason)
	}
	assert.Equal(t, []string{"b", "e", "d", "a", "c"}, order)
	// input untouched
	assert.Equal(t, "a", issues[0].Reason)
}

func TestTopIssues(t *testing.T) {
	issues := []Issue{
		{Reason: "low", Severity: SeverityLow},
		{Reason: "crit", Severity: SeverityCritical},
		{Reason: "med", Severity: SeverityMedium},
		{Reason: "high", Severity: SeverityHigh},
	}

	top := TopIssues(issues, 3)
	assert.Len(t, top, 3)
	assert.Equal(t, "crit", top[0].Reason)
	assert.Equal(t, "high", top[1].Reason)
	assert.Equal(t, "med", top[2].Reason)

	assert.Len(t, TopIssues(issues[:2], 3), 2)
}

func TestCountBySeverity(t *testing.T) {
	counts := CountBySeverity([]Issue{
		{Severity: SeverityHigh},
		{Severity: SeverityHigh},
		{Severity: SeverityCritical},
	})
	assert.Equal(t, 2, counts[SeverityHigh])
	assert.Equal(t, 1, counts[SeverityCritical])
	assert.Equal(t, 0, counts[SeverityLow])
}

func TestIssueString(t *testing.T) {
	i := Issue{Severity: SeverityHigh, Reason: "CrashLoopBackOff", Resource: "default/web"}
	assert.Equal(t, "🟠 HIGH: CrashLoopBackOff - default/web", i.String())
}
