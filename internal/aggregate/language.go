package aggregate

import (
	"path/filepath"
	"strings"
)

// defaultLanguageTag labels content whose extension is unknown or missing.
const defaultLanguageTag = "text"

// languageTags maps lower-case file extensions to markdown fence language
// identifiers.
var languageTags = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "jsx",
	".ts":    "typescript",
	".tsx":   "tsx",
	".php":   "php",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".json":  "json",
	".md":    "markdown",
	".sh":    "bash",
	".go":    "go",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".swift": "swift",
	".rb":    "ruby",
	".c":     "c",
	".cpp":   "cpp",
	".h":     "cpp",
	".cs":    "csharp",
	".m":     "objectivec",
	".pl":    "perl",
	".lua":   "lua",
	".sql":   "sql",
	".xml":   "xml",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".ini":   "ini",
	".cfg":   "ini",
	".conf":  "ini",
}

// languageTag returns the fence language identifier for path, derived from
// its extension.
func languageTag(path string) string {
	extension := strings.ToLower(filepath.Ext(path))
	if tag, known := languageTags[extension]; known {
		return tag
	}
	return defaultLanguageTag
}
