package approval

import "regexp"

// requireRule forces human approval when its pattern matches the change
// description, regardless of everything else.
type requireRule struct {
	Category string
	Pattern  *regexp.Regexp
	Reason   string
}

// autoRule marks a change auto-approvable when any of its patterns
// match, subject to the allow-list and its line ceiling.
type autoRule struct {
	Category string
	Patterns []*regexp.Regexp
	MaxLines int
}

// requireApprovalRules are checked first and in order; any match ends
// classification with a require-approval verdict. Patterns are written
// so that risk keywords win even when the description also mentions an
// innocuous activity ("refactor auth token handling" is security, not a
// dry violation).
var requireApprovalRules = []requireRule{
	{
		Category: "security",
		Pattern:  regexp.MustCompile(`(?i)\b(auth|password|token|secret|credential|crypt|permission)`),
		Reason:   "touches authentication or secrets",
	},
	{
		Category: "database",
		Pattern:  regexp.MustCompile(`(?i)\b(migration|schema|database|\bsql\b|\bdb\b)`),
		Reason:   "modifies database structure or queries",
	},
	{
		Category: "api-change",
		Pattern:  regexp.MustCompile(`(?i)\b(endpoint|route|\bapi\b|breaking change|contract)`),
		Reason:   "changes an external interface",
	},
	{
		Category: "dependency",
		Pattern:  regexp.MustCompile(`(?i)(package\.json|go\.mod|dependenc|upgrade|\bbump\b)`),
		Reason:   "alters dependencies",
	},
	{
		Category: "architecture",
		Pattern:  regexp.MustCompile(`(?i)\b(architecture|restructur|redesign|rewrite)`),
		Reason:   "restructures the system",
	},
	{
		Category: "config",
		Pattern:  regexp.MustCompile(`(?i)(\bconfig\b|settings|environment variable|\.env\b)`),
		Reason:   "changes runtime configuration",
	},
	{
		Category: "deployment",
		Pattern:  regexp.MustCompile(`(?i)\b(deploy|release|pipeline|dockerfile|kubernetes|\bci\b)`),
		Reason:   "affects deployment or release",
	},
}

// autoApproveRules are checked only after no require-approval rule
// matched, in order.
var autoApproveRules = []autoRule{
	{
		Category: "formatting",
		Patterns: compileAll(`(?i)\bformat`, `(?i)whitespace`, `(?i)\bindent`, `(?i)lint`),
		MaxLines: 50,
	},
	{
		Category: "dry-violations",
		Patterns: compileAll(`(?i)duplicat`, `(?i)\bdry\b`, `(?i)\brefactor\b`, `(?i)extract (function|method|helper)`),
		MaxLines: 40,
	},
	{
		Category: "dead-code",
		Patterns: compileAll(`(?i)dead.?code`, `(?i)\bunused\b`, `(?i)remove commented`),
		MaxLines: 30,
	},
	{
		Category: "typo-fix",
		Patterns: compileAll(`(?i)\btypo\b`, `(?i)spelling`, `(?i)misspell`),
		MaxLines: 10,
	},
	{
		Category: "import-cleanup",
		Patterns: compileAll(`(?i)\bimports?\b`, `(?i)organize imports`),
		MaxLines: 20,
	},
	{
		Category: "documentation",
		Patterns: compileAll(`(?i)\breadme\b`, `(?i)\bdocs?\b`, `(?i)documentation`, `(?i)\bcomments?\b`),
		MaxLines: 100,
	},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}
