// Package ignore builds gitignore-style exclusion rule sets for a project
// tree and answers path exclusion queries against them.
package ignore

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/temirov/ctxd/internal/types"
	"github.com/temirov/ctxd/internal/utils"
)

const defaultCacheCapacity = 64

// Options configures a Resolver.
type Options struct {
	// GitignoreFileName overrides the repository ignore file name.
	GitignoreFileName string
	// IgnoreFileName overrides the project-local override file name.
	IgnoreFileName string
	// CacheCapacity bounds each memoization cache. Zero selects the default.
	CacheCapacity int
}

// Resolver builds and memoizes ignore rule sets per repository root and per
// project base path. It is safe for concurrent use.
type Resolver struct {
	gitignoreFileName string
	ignoreFileName    string
	repositoryCache   *ruleSetCache
	localCache        *ruleSetCache
}

// NewResolver returns a Resolver with the supplied options, falling back to
// the standard ignore file names and the default cache capacity.
func NewResolver(options Options) *Resolver {
	gitignoreFileName := options.GitignoreFileName
	if gitignoreFileName == "" {
		gitignoreFileName = utils.GitIgnoreFileName
	}
	ignoreFileName := options.IgnoreFileName
	if ignoreFileName == "" {
		ignoreFileName = utils.IgnoreFileName
	}
	cacheCapacity := options.CacheCapacity
	if cacheCapacity <= 0 {
		cacheCapacity = defaultCacheCapacity
	}
	return &Resolver{
		gitignoreFileName: gitignoreFileName,
		ignoreFileName:    ignoreFileName,
		repositoryCache:   newRuleSetCache(cacheCapacity),
		localCache:        newRuleSetCache(cacheCapacity),
	}
}

// FindRepositoryRoot walks parent directories upward from startPath until one
// contains the version-control marker directory. The boolean result is false
// when the filesystem root is reached without a match; I/O errors are treated
// as "not found".
func FindRepositoryRoot(startPath string) (string, bool) {
	absoluteStartPath, absolutePathError := filepath.Abs(startPath)
	if absolutePathError != nil {
		return "", false
	}
	currentDirectory := absoluteStartPath
	for {
		markerInfo, statError := os.Stat(filepath.Join(currentDirectory, utils.GitDirectoryName))
		if statError == nil && markerInfo.IsDir() {
			return currentDirectory, true
		}
		parentDirectory := filepath.Dir(currentDirectory)
		if parentDirectory == currentDirectory {
			return "", false
		}
		currentDirectory = parentDirectory
	}
}

// Lookup resolves the repository root and both rule sets for basePath once,
// so repeated exclusion checks against the same base share resolved state.
func (resolver *Resolver) Lookup(basePath string) *Lookup {
	absoluteBasePath, absolutePathError := filepath.Abs(basePath)
	if absolutePathError != nil {
		absoluteBasePath = filepath.Clean(basePath)
	}
	resolvedLookup := &Lookup{BasePath: absoluteBasePath}
	if repositoryRoot, rootFound := FindRepositoryRoot(absoluteBasePath); rootFound {
		resolvedLookup.RepositoryRoot = repositoryRoot
		resolvedLookup.repository = resolver.repositoryCache.lookup(repositoryRoot, func() *RuleSet {
			return resolver.buildRepositoryRuleSet(repositoryRoot)
		})
	}
	resolvedLookup.local = resolver.localCache.lookup(absoluteBasePath, func() *RuleSet {
		return resolver.buildLocalRuleSet(absoluteBasePath)
	})
	return resolvedLookup
}

// Invalidate drops every memoized rule set so the next Lookup re-reads the
// ignore files from disk.
func (resolver *Resolver) Invalidate() {
	resolver.repositoryCache.clear()
	resolver.localCache.clear()
}

// buildRepositoryRuleSet aggregates the repository ignore file chain under
// repositoryRoot into a single root-scoped rule set. The root file is read
// first; nested ignore files are discovered by walking subdirectories in
// name order, rewriting their patterns with the directory prefix. Traversal
// prunes directories already excluded by the rules discovered so far and
// never descends into hidden directories.
func (resolver *Resolver) buildRepositoryRuleSet(repositoryRoot string) *RuleSet {
	ruleSet := newRuleSet(repositoryRoot)
	rootLines := readPatternLines(filepath.Join(repositoryRoot, resolver.gitignoreFileName))
	ruleSet.addEntries(parsePatternEntries(rootLines, resolver.gitignoreFileName, ""))

	var walkDirectory func(directoryPath string, relativeDirectory string)
	walkDirectory = func(directoryPath string, relativeDirectory string) {
		directoryEntries, readDirectoryError := os.ReadDir(directoryPath)
		if readDirectoryError != nil {
			return
		}
		for _, directoryEntry := range directoryEntries {
			if !directoryEntry.IsDir() {
				continue
			}
			entryName := directoryEntry.Name()
			if strings.HasPrefix(entryName, ".") {
				continue
			}
			childRelative := entryName
			if relativeDirectory != "" {
				childRelative = relativeDirectory + "/" + entryName
			}
			if ruleSet.Matches(childRelative, true) {
				continue
			}
			childPath := filepath.Join(directoryPath, entryName)
			nestedLines := readPatternLines(filepath.Join(childPath, resolver.gitignoreFileName))
			if len(nestedLines) > 0 {
				sourceFile := path.Join(childRelative, resolver.gitignoreFileName)
				ruleSet.addEntries(parsePatternEntries(nestedLines, sourceFile, childRelative))
			}
			walkDirectory(childPath, childRelative)
		}
	}
	walkDirectory(repositoryRoot, "")
	return ruleSet
}

// buildLocalRuleSet reads the single project-local override file at basePath.
// There is no recursion and no inheritance from parent directories.
func (resolver *Resolver) buildLocalRuleSet(basePath string) *RuleSet {
	ruleSet := newRuleSet(basePath)
	localLines := readPatternLines(filepath.Join(basePath, resolver.ignoreFileName))
	ruleSet.addEntries(parsePatternEntries(localLines, resolver.ignoreFileName, ""))
	return ruleSet
}

// Lookup carries the rule sets resolved for one base path.
type Lookup struct {
	// BasePath is the absolute project base path.
	BasePath string
	// RepositoryRoot is the enclosing repository root, or empty when the
	// base path is not inside a repository.
	RepositoryRoot string

	repository *RuleSet
	local      *RuleSet
}

// IsExcluded reports whether absolutePath is excluded from processing.
// Entries whose base name starts with a dot are always excluded, as is any
// path below a hidden directory inside the base. Otherwise the path and each
// of its ancestor directories are tested against the repository rule set
// relative to the repository root and, independently, against the local
// override rule set relative to the base path; any match excludes. Ancestor
// directories are tested so a path named directly resolves exactly like one
// discovered by a pruning walk. When directoryHint is nil the path is
// stat'ed exactly once to classify it.
func (lookup *Lookup) IsExcluded(absolutePath string, directoryHint *bool) bool {
	baseName := filepath.Base(absolutePath)
	if strings.HasPrefix(baseName, ".") {
		return true
	}

	localRelative, insideBase := relativeWithin(lookup.BasePath, absolutePath)
	if insideBase && hasHiddenAncestor(localRelative) {
		return true
	}

	isDirectory := false
	if directoryHint != nil {
		isDirectory = *directoryHint
	} else {
		pathInfo, statError := os.Stat(absolutePath)
		isDirectory = statError == nil && pathInfo.IsDir()
	}

	if lookup.repository != nil {
		if repositoryRelative, insideRepository := relativeWithin(lookup.RepositoryRoot, absolutePath); insideRepository {
			if matchesWithAncestors(lookup.repository, repositoryRelative, isDirectory) {
				return true
			}
		}
	}
	if lookup.local != nil && insideBase {
		if matchesWithAncestors(lookup.local, localRelative, isDirectory) {
			return true
		}
	}
	return false
}

// Diagnose explains the exclusion decision for absolutePath: whether it
// exists, whether it is excluded, and every pattern whose glob matches it.
func (lookup *Lookup) Diagnose(absolutePath string) types.ExclusionDiagnostic {
	pathInfo, statError := os.Stat(absolutePath)
	pathExists := statError == nil
	isDirectory := pathExists && pathInfo.IsDir()

	diagnostic := types.ExclusionDiagnostic{
		Path:             utils.RelativePathOrSelf(absolutePath, lookup.BasePath),
		Exists:           pathExists,
		IsDirectory:      isDirectory,
		MatchingPatterns: []string{},
	}
	directoryHint := isDirectory
	diagnostic.Excluded = lookup.IsExcluded(absolutePath, &directoryHint)

	if lookup.repository != nil {
		if repositoryRelative, insideRepository := relativeWithin(lookup.RepositoryRoot, absolutePath); insideRepository {
			diagnostic.MatchingPatterns = append(diagnostic.MatchingPatterns, lookup.repository.MatchingPatterns(repositoryRelative, isDirectory)...)
		}
	}
	if lookup.local != nil {
		if localRelative, insideBase := relativeWithin(lookup.BasePath, absolutePath); insideBase {
			diagnostic.MatchingPatterns = append(diagnostic.MatchingPatterns, lookup.local.MatchingPatterns(localRelative, isDirectory)...)
		}
	}
	return diagnostic
}

// matchesWithAncestors tests relativePath against the rule set, first probing
// each proper ancestor directory so rules that exclude a directory also
// exclude everything beneath it.
func matchesWithAncestors(ruleSet *RuleSet, relativePath string, isDirectory bool) bool {
	pathSegments := strings.Split(relativePath, "/")
	ancestorPath := ""
	for segmentIndex := 0; segmentIndex < len(pathSegments)-1; segmentIndex++ {
		if ancestorPath == "" {
			ancestorPath = pathSegments[segmentIndex]
		} else {
			ancestorPath = ancestorPath + "/" + pathSegments[segmentIndex]
		}
		if ruleSet.Matches(ancestorPath, true) {
			return true
		}
	}
	return ruleSet.Matches(relativePath, isDirectory)
}

// hasHiddenAncestor reports whether any directory segment of relativePath,
// excluding the final segment, starts with a dot.
func hasHiddenAncestor(relativePath string) bool {
	pathSegments := strings.Split(relativePath, "/")
	for segmentIndex := 0; segmentIndex < len(pathSegments)-1; segmentIndex++ {
		if strings.HasPrefix(pathSegments[segmentIndex], ".") {
			return true
		}
	}
	return false
}

// relativeWithin returns the slash-separated path of target under root and
// whether target is strictly contained in root.
func relativeWithin(root string, target string) (string, bool) {
	relativePath, relativeError := filepath.Rel(root, target)
	if relativeError != nil {
		return "", false
	}
	if relativePath == "." || relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(relativePath), true
}
