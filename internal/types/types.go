// Package types defines shared data structures used by the ctxd core and its
// presentation surfaces.
package types

// Node kinds reported in project structure trees.
const (
	// NodeKindDirectory identifies directory nodes.
	NodeKindDirectory = "directory"
	// NodeKindFile identifies file nodes.
	NodeKindFile = "file"
)

// TreeNode represents a single filesystem entry in the project structure
// snapshot. Path is relative to the project base path with forward slashes
// and empty for the root node. Children holds directories strictly before
// files, each group ordered case-insensitively by name; it is empty, never
// nil, so the serialized form always carries a children list.
type TreeNode struct {
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	Kind     string      `json:"type"`
	Children []*TreeNode `json:"children"`
}

// IndexStatus reports the lifecycle state of the project index.
type IndexStatus struct {
	Valid       bool   `json:"valid"`
	Building    bool   `json:"building"`
	Fingerprint string `json:"fingerprint,omitempty"`
	BuiltAt     string `json:"built_at,omitempty"`
}

// ExclusionDiagnostic describes why a path is or is not excluded from
// processing. MatchingPatterns lists every ignore pattern whose glob matches
// the path, including negated patterns, in rule-set order.
type ExclusionDiagnostic struct {
	Path             string   `json:"path"`
	Excluded         bool     `json:"excluded"`
	Exists           bool     `json:"exists"`
	IsDirectory      bool     `json:"is_dir"`
	MatchingPatterns []string `json:"matching_patterns"`
}
