package prompt

// CLASSIFY: turn one detected issue into a structured classification.
var SystemClassify = `You are a senior SRE with deep Kubernetes expertise. You classify cluster issues precisely and answer in JSON only.`

var PromptClassify = `
Classify the following Kubernetes issue.

ISSUE:
- Kind: {{KIND}}
- Resource: {{RESOURCE}}
- Reason: {{REASON}}
- Detected severity: {{SEVERITY}}
- Message: {{MESSAGE}}

You MUST output ONLY valid JSON, matching exactly this schema:

{
  "type": "",
  "severity": "low|medium|high|critical",
  "components": [""],
  "root_cause_category": "image|resource|network|config|security",
  "investigation_priority": 1,
  "immediate_action_needed": false,
  "impact": "minimal|moderate|significant|severe"
}

Rules:
- No text outside JSON.
- "investigation_priority" is an integer from 1 (ignore) to 10 (drop everything).
- Base the severity on user impact, not on the detected severity alone.
`

// SOLVE: resolution steps grounded in the local knowledge base.
var SystemSolve = `You are a senior SRE giving actionable, copy-pasteable resolution steps for Kubernetes incidents.`

var PromptSolve = `
Propose a resolution for this issue.

KNOWLEDGE BASE:
{{KNOWLEDGE}}

ISSUE:
- Resource: {{RESOURCE}}
- Namespace: {{NAMESPACE}}
- Type: {{TYPE}}
- Severity: {{SEVERITY}}
- Root cause category: {{CATEGORY}}
- Message: {{MESSAGE}}

Output a numbered list of at most 5 steps, one per line, nothing else.
Each step is a single imperative sentence and may include one kubectl command.
Prefer guidance from the knowledge base when it applies.
`

// PLAN: choose the order of investigation steps.
var SystemPlan = `You plan Kubernetes investigations. You only ever answer with a JSON array of step identifiers.`

var PromptPlan = `
A cluster health check found these issues:

{{ISSUES}}

Available investigation steps (use these identifiers exactly):
{{STEPS}}

Choose which steps to run and in which order, most informative first.
"finalize" must be the last element.

You MUST output ONLY a JSON array of strings, e.g. ["overview","pods","finalize"].
`
