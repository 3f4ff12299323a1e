package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// SecretRule is one built-in or user-supplied secret pattern applied to
// added lines of a diff. Mirrors the shape of the rule table the
// teacher's internal/secrets package defines.
type SecretRule struct {
	Type  string `koanf:"type"`
	Regex string `koanf:"regex"`

	compiled *regexp.Regexp
}

// Config is the Gate2 policy configuration (§4.3).
type Config struct {
	FrozenFiles            []string     `koanf:"frozen_files"`
	DenyGlobs              []string     `koanf:"deny_globs"`
	SecretPatterns         []SecretRule `koanf:"secret_patterns"`
	Placeholders           []string     `koanf:"placeholders"`
	DependencyFiles        []string     `koanf:"dependency_files"`
	AllowDependencyChanges bool         `koanf:"allow_dependency_changes"`
	LargeDiffBytes         int          `koanf:"large_diff_bytes"`

	compiledPlaceholders []*regexp.Regexp
}

// DefaultConfig returns the built-in policy configuration described in
// §4.3: frozen CI/ownership files, common secret/credential globs, the
// domain-specific secret regex table, common placeholder patterns that
// suppress false positives, and the standard dependency manifests.
func DefaultConfig() *Config {
	return &Config{
		FrozenFiles: []string{
			"go.sum", "go.mod.sum", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
			"LICENSE", "LICENSE.md", ".gitattributes",
			".github/workflows/*", "Dockerfile", "CODEOWNERS",
		},
		DenyGlobs: []string{
			".env*", "*.pem", "*.key",
			"(?i)(secrets?|credentials?|private[_-]?key|password)",
		},
		SecretPatterns:  defaultSecretRules(),
		Placeholders:    []string{`^<[^>]+>$`, `^\{\{.*\}\}$`, `^your[_-]?`, `^example$`},
		DependencyFiles: []string{"package.json", "go.mod", "Cargo.toml", "requirements.txt", "Gemfile", "pyproject.toml"},
		LargeDiffBytes:  10 * 1024,
	}
}

// Validate compiles every regex pattern in the configuration, failing
// fast on malformed policy data rather than at evaluation time.
func (c *Config) Validate() error {
	for i := range c.SecretPatterns {
		re, err := regexp.Compile(c.SecretPatterns[i].Regex)
		if err != nil {
			return fmt.Errorf("secret pattern %q: %w", c.SecretPatterns[i].Type, err)
		}
		c.SecretPatterns[i].compiled = re
	}
	c.compiledPlaceholders = c.compiledPlaceholders[:0]
	for _, p := range c.Placeholders {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("placeholder pattern %q: %w", p, err)
		}
		c.compiledPlaceholders = append(c.compiledPlaceholders, re)
	}
	for _, g := range c.DenyGlobs {
		if _, err := filepath.Match(g, "probe"); err != nil {
			// Not every deny glob is a filepath.Match pattern (some are
			// plain regexes, e.g. the secrets/credentials alternation);
			// those are matched with regexp instead, see matchesDenyGlob.
			if _, reErr := regexp.Compile(g); reErr != nil {
				return fmt.Errorf("deny glob %q is neither a valid glob nor regex: %w", g, err)
			}
		}
	}
	return nil
}

func (c *Config) isPlaceholder(candidate string) bool {
	for _, re := range c.compiledPlaceholders {
		if re.MatchString(candidate) {
			return true
		}
	}
	return false
}

func matchesDenyGlob(pattern, path string) bool {
	if ok, err := filepath.Match(pattern, path); err == nil && ok {
		return true
	}
	if ok, err := filepath.Match(pattern, filepath.Base(path)); err == nil && ok {
		return true
	}
	if re, err := regexp.Compile(pattern); err == nil {
		return re.MatchString(path)
	}
	return false
}
