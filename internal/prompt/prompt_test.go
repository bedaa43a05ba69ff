package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_AllTemplates(t *testing.T) {
	for _, name := range []string{Classify, Solve, Plan} {
		t.Run(name, func(t *testing.T) {
			system, user, err := Render(name, nil)
			require.NoError(t, err)
			assert.NotEmpty(t, system)
			assert.NotEmpty(t, user)
			assert.NotContains(t, user, "{{")
		})
	}
}

func TestRender_Substitutes(t *testing.T) {
	_, user, err := Render(Classify, map[string]string{
		"RESOURCE": "default/web",
		"REASON":   "CrashLoopBackOff",
		"MESSAGE":  "",
	})
	require.NoError(t, err)
	assert.Contains(t, user, "- Resource: default/web")
	assert.Contains(t, user, "- Reason: CrashLoopBackOff")
	assert.Contains(t, user, "- Message: unknown")
	assert.Contains(t, user, "- Kind: unknown")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, _, err := Render("nonexistent", nil)
	assert.Error(t, err)
}
