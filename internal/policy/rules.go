package policy

// defaultSecretRules returns the built-in secretPatterns table (§4.3): AWS
// access/secret keys, GitHub/GitLab/Slack/Stripe tokens, PEM private key
// headers, generic api-key/secret/password/bearer patterns, and database
// URLs with embedded credentials. Adapted from the regex table the
// teacher's internal/secrets package ships (itself modeled on gitleaks'
// pattern set); the gitleaks detector itself also runs over added lines
// in evaluate.go for defense in depth, see runGitleaks.
func defaultSecretRules() []SecretRule {
	return []SecretRule{
		{Type: "aws_access_key", Regex: `(?i)(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`},
		{Type: "aws_secret_key", Regex: `(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?([A-Za-z0-9/+=]{40})['"]?`},
		{Type: "github_token", Regex: `gh[pous]_[A-Za-z0-9]{36}`},
		{Type: "github_fine_grained_token", Regex: `github_pat_[A-Za-z0-9_]{22,}`},
		{Type: "gitlab_token", Regex: `glpat-[A-Za-z0-9\-]{20,}`},
		{Type: "slack_token", Regex: `xox[baprs]-[A-Za-z0-9\-]{10,}`},
		{Type: "stripe_live_key", Regex: `sk_live_[A-Za-z0-9]{24,}`},
		{Type: "pem_private_key", Regex: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`},
		{Type: "generic_api_key", Regex: `(?i)(?:api[_-]?key|apikey)\s*[:=]\s*['"]?([A-Za-z0-9_\-]{16,64})['"]?`},
		{Type: "generic_secret", Regex: `(?i)(?:secret|password|passwd|pwd)\s*[:=]\s*['"]?([^\s'"]{8,})['"]?`},
		{Type: "bearer_jwt", Regex: `(?i)bearer\s+eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`},
		{Type: "database_url", Regex: `(?i)(?:postgres|mysql|mongodb|redis|amqp)://[^:]+:[^@]+@[^\s]+`},
	}
}
