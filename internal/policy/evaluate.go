package policy

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Verdict is the overall Gate2 outcome for a PatchSet.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictWarn Verdict = "warn"
	VerdictFail Verdict = "fail"
)

// ViolationCode enumerates the reasons EvaluateGate2 can block or warn on
// a diff, matching the well-known violation types in §4.3.
type ViolationCode string

const (
	ViolationFrozenFile       ViolationCode = "frozen_file"
	ViolationDeniedPath       ViolationCode = "denied_path"
	ViolationSecretDetected   ViolationCode = "secret_detected"
	ViolationDependencyChange ViolationCode = "dependency_change"
	ViolationLargeDiff        ViolationCode = "large_diff"
)

// Violation is one policy finding against a touched file or added line.
type Violation struct {
	Code     ViolationCode
	Severity Severity
	File     string
	Line     int
	Evidence string
	Detail   string
}

// Severity mirrors domain.Severity without importing it, to keep the
// policy package dependency-free of the store/domain layer; evaluate.go's
// caller maps this back onto domain.PolicyViolation.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
)

// Gate2Result is the full outcome of evaluating one diff against a Config.
type Gate2Result struct {
	Verdict        Verdict
	Violations     []Violation
	TouchedFiles   []string
	DiffBytes      int
	ConfigSnapshot *Config
}

const evidenceTruncateLen = 50

// EvaluateGate2 runs the §4.3 policy checks against a unified diff and
// returns a deterministic verdict: any block-severity violation yields
// VerdictFail; zero blocks but at least one warn yields VerdictWarn;
// otherwise VerdictPass. Calling this twice with identical arguments must
// produce identical results.
func EvaluateGate2(diff string, cfg *Config) Gate2Result {
	files := ParseDiff(diff)

	result := Gate2Result{
		Verdict:        VerdictPass,
		DiffBytes:      len(diff),
		ConfigSnapshot: cfg,
	}

	touched := map[string]struct{}{}
	for _, f := range files {
		for _, p := range f.TouchedPaths() {
			touched[p] = struct{}{}
		}
		result.TouchedFiles = append(result.TouchedFiles, f.TouchedPaths()...)

		for _, frozen := range cfg.FrozenFiles {
			if matchesPath(frozen, f.Path) {
				result.Violations = append(result.Violations, Violation{
					Code:     ViolationFrozenFile,
					Severity: SeverityBlock,
					File:     f.Path,
					Detail:   fmt.Sprintf("%s is frozen and cannot be modified by an automated patch", f.Path),
				})
			}
		}

		for _, deny := range cfg.DenyGlobs {
			if matchesDenyGlob(deny, f.Path) {
				result.Violations = append(result.Violations, Violation{
					Code:     ViolationDeniedPath,
					Severity: SeverityBlock,
					File:     f.Path,
					Detail:   fmt.Sprintf("%s matches denied path pattern %q", f.Path, deny),
				})
			}
		}

		for _, dep := range cfg.DependencyFiles {
			if filepath.Base(f.Path) == dep {
				severity := SeverityBlock
				if cfg.AllowDependencyChanges {
					severity = SeverityWarn
				}
				result.Violations = append(result.Violations, Violation{
					Code:     ViolationDependencyChange,
					Severity: severity,
					File:     f.Path,
					Detail:   fmt.Sprintf("%s changes dependency manifest %s", f.Path, dep),
				})
			}
		}

		result.Violations = append(result.Violations, scanAddedLines(f, cfg)...)
	}

	if cfg.LargeDiffBytes > 0 && result.DiffBytes > cfg.LargeDiffBytes {
		result.Violations = append(result.Violations, Violation{
			Code:     ViolationLargeDiff,
			Severity: SeverityWarn,
			Detail:   fmt.Sprintf("diff is %d bytes, exceeding the %d byte advisory threshold", result.DiffBytes, cfg.LargeDiffBytes),
		})
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityBlock {
			result.Verdict = VerdictFail
			break
		}
		result.Verdict = VerdictWarn
	}
	return result
}

func matchesPath(pattern, path string) bool {
	if pattern == path || filepath.Base(path) == pattern {
		return true
	}
	ok, err := filepath.Match(pattern, path)
	return err == nil && ok
}

// scanAddedLines applies the compiled secret regex table and the real
// gitleaks detector to a file's added lines, suppressing matches that look
// like placeholders (so example/doc snippets don't trip the gate).
func scanAddedLines(f FileDiff, cfg *Config) []Violation {
	var out []Violation
	reportedLines := map[int]bool{}
	for _, rule := range cfg.SecretPatterns {
		re := rule.compiled
		if re == nil {
			continue
		}
		for _, line := range f.AddedLines {
			match := re.FindString(line.Text)
			if match == "" {
				continue
			}
			if cfg.isPlaceholder(strings.TrimSpace(match)) {
				continue
			}
			out = append(out, Violation{
				Code:     ViolationSecretDetected,
				Severity: SeverityBlock,
				File:     line.File,
				Line:     line.Line,
				Evidence: truncate(match, evidenceTruncateLen),
				Detail:   fmt.Sprintf("matched secret pattern %q", rule.Type),
			})
			reportedLines[line.Line] = true
		}
	}
	out = append(out, runGitleaks(f, cfg, reportedLines)...)
	return out
}

// runGitleaks layers the real gitleaks detector over the added lines of a
// file as a second, independently-maintained detection pass (the built-in
// SecretPatterns table above is homegrown and can drift; gitleaks' rule
// set is maintained upstream). A finding is only raised if it wasn't
// already reported by the regex table for the same line, avoiding
// duplicate violations for the same secret.
func runGitleaks(f FileDiff, cfg *Config, reportedLines map[int]bool) []Violation {
	if len(f.AddedLines) == 0 {
		return nil
	}
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil
	}

	var out []Violation
	for _, line := range f.AddedLines {
		if reportedLines[line.Line] {
			continue
		}
		if cfg.isPlaceholder(strings.TrimSpace(line.Text)) {
			continue
		}
		findings := d.DetectString(line.Text)
		for _, finding := range findings {
			out = append(out, Violation{
				Code:     ViolationSecretDetected,
				Severity: SeverityBlock,
				File:     line.File,
				Line:     line.Line,
				Evidence: truncate(finding.Secret, evidenceTruncateLen),
				Detail:   fmt.Sprintf("gitleaks rule %q", finding.RuleID),
			})
			reportedLines[line.Line] = true
		}
	}
	return out
}

// truncate cuts s to n characters, appending an ellipsis when it had to
// (§4.3 step 3: "first 50 chars, ellipsis if longer").
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
