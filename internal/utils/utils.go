// Package utils contains general helper functions shared across ctxd.
package utils

import (
	"path/filepath"
)

// Well-known file and directory names used across the project.
const (
	// IgnoreFileName is the name of the project-local override ignore file.
	IgnoreFileName = ".ignore"
	// GitIgnoreFileName is the name of the repository ignore file.
	GitIgnoreFileName = ".gitignore"
	// GitDirectoryName is the name of the Git repository marker directory.
	GitDirectoryName = ".git"
	// ConfigFileName is the name of the ctxd configuration file.
	ConfigFileName = ".ctxd.yaml"
	// GlobalConfigDirectoryName is the directory under the user home that holds global configuration.
	GlobalConfigDirectoryName = ".ctxd"
)

// LoggerInitializationFailedMessageFormat reports a logger construction failure.
const LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"

// ApplicationExecutionFailedMessage prefixes fatal command execution errors.
const ApplicationExecutionFailedMessage = "application execution failed"

// DeduplicateStrings removes duplicate values from a slice while preserving
// order. The first occurrence of each unique value is kept.
func DeduplicateStrings(values []string) []string {
	encounteredValues := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, exists := encounteredValues[value]; !exists {
			encounteredValues[value] = struct{}{}
			result = append(result, value)
		}
	}
	return result
}

// RelativePathOrSelf calculates the slash-separated relative path from root
// to fullPath. Returns the cleaned fullPath if relative calculation fails and
// "." if fullPath and root resolve to the same directory.
func RelativePathOrSelf(fullPath string, root string) string {
	cleanPath := filepath.Clean(fullPath)
	absoluteRoot, absoluteRootError := filepath.Abs(root)
	if absoluteRootError != nil {
		return cleanPath
	}
	cleanAbsoluteRoot := filepath.Clean(absoluteRoot)

	if cleanPath == cleanAbsoluteRoot {
		return "."
	}

	relativePath, relativePathError := filepath.Rel(cleanAbsoluteRoot, cleanPath)
	if relativePathError != nil {
		return cleanPath
	}
	return filepath.ToSlash(relativePath)
}
