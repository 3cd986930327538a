package ignore

import (
	"bufio"
	"bytes"
	"os"
	"strings"
	"unicode/utf8"

	goignore "github.com/Sriram-PR/go-ignore"
)

// PatternEntry describes a single ignore pattern after scope rewriting.
type PatternEntry struct {
	// Pattern is the pattern text as compiled into the matcher. Patterns
	// from nested ignore files carry their directory prefix.
	Pattern string
	// Source is the ignore file the pattern came from, relative to the
	// rule-set base directory.
	Source string
	// Negated reports whether the pattern re-includes matching paths.
	Negated bool
	// DirOnly reports whether the pattern applies to directories only.
	DirOnly bool
	// Anchored reports whether the original pattern carried a leading
	// path separator.
	Anchored bool
}

// RuleSet holds the ordered ignore patterns scoped to one base directory,
// compiled into a single matcher. Pattern order matters: later patterns
// override earlier ones, so negations behave the way ignore files define.
type RuleSet struct {
	// BasePath is the absolute directory the rule set is scoped to.
	BasePath string
	// Entries lists the compiled patterns in evaluation order.
	Entries []PatternEntry

	matcher *goignore.Matcher
}

func newRuleSet(basePath string) *RuleSet {
	return &RuleSet{BasePath: basePath, matcher: goignore.New()}
}

// addEntries appends entries to the rule set and compiles them into the
// matcher. Malformed patterns are skipped by the matcher without error.
func (ruleSet *RuleSet) addEntries(entries []PatternEntry) {
	if len(entries) == 0 {
		return
	}
	patternLines := make([]string, 0, len(entries))
	for _, entry := range entries {
		patternLines = append(patternLines, entry.Pattern)
	}
	ruleSet.matcher.AddPatterns("", []byte(strings.Join(patternLines, "\n")))
	ruleSet.Entries = append(ruleSet.Entries, entries...)
}

// Matches reports whether relativePath is excluded by the rule set.
// relativePath is slash-separated and relative to BasePath; the base
// directory itself never matches.
func (ruleSet *RuleSet) Matches(relativePath string, isDirectory bool) bool {
	if relativePath == "" || relativePath == "." {
		return false
	}
	return ruleSet.matcher.Match(relativePath, isDirectory)
}

// MatchingPatterns returns the text of every pattern whose glob matches
// relativePath, including negated patterns. Each entry is probed with its
// own single-pattern matcher so negations report as matches rather than
// silently flipping the aggregate verdict.
func (ruleSet *RuleSet) MatchingPatterns(relativePath string, isDirectory bool) []string {
	if relativePath == "" || relativePath == "." {
		return nil
	}
	var matchedPatterns []string
	for _, entry := range ruleSet.Entries {
		probe := goignore.New()
		probe.AddPatterns("", []byte(strings.TrimPrefix(entry.Pattern, "!")))
		if probe.Match(relativePath, isDirectory) {
			matchedPatterns = append(matchedPatterns, entry.Pattern)
		}
	}
	return matchedPatterns
}

// readPatternLines reads an ignore file and returns its non-blank,
// non-comment lines. Unreadable or non-UTF8 files contribute no lines.
func readPatternLines(ignoreFilePath string) []string {
	content, readError := os.ReadFile(ignoreFilePath) // #nosec G304
	if readError != nil {
		return nil
	}
	if !utf8.Valid(content) {
		return nil
	}
	var patternLines []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		trimmedLine := strings.TrimSpace(scanner.Text())
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, "#") {
			continue
		}
		patternLines = append(patternLines, trimmedLine)
	}
	return patternLines
}

// parsePatternEntries converts raw ignore-file lines into entries scoped to
// scopeDirectory, the slash-relative directory of the ignore file within the
// rule set ("" for the base directory itself). Anchored patterns from nested
// files lose their leading separator and gain the directory prefix; unanchored
// patterns gain the same prefix verbatim, so both forms scope identically.
// Negation markers are preserved outside the rewritten body.
func parsePatternEntries(rawLines []string, sourceFile string, scopeDirectory string) []PatternEntry {
	entries := make([]PatternEntry, 0, len(rawLines))
	for _, rawLine := range rawLines {
		entry := PatternEntry{Source: sourceFile}
		patternBody := rawLine
		if strings.HasPrefix(patternBody, "!") {
			entry.Negated = true
			patternBody = patternBody[1:]
		}
		if strings.HasPrefix(patternBody, "/") {
			entry.Anchored = true
			patternBody = patternBody[1:]
		}
		if patternBody == "" {
			continue
		}
		entry.DirOnly = strings.HasSuffix(patternBody, "/")
		if scopeDirectory != "" {
			patternBody = scopeDirectory + "/" + patternBody
		} else if entry.Anchored {
			patternBody = "/" + patternBody
		}
		if entry.Negated {
			patternBody = "!" + patternBody
		}
		entry.Pattern = patternBody
		entries = append(entries, entry)
	}
	return entries
}
