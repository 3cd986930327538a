package cli

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadSelectionManifest(t *testing.T) {
	testCases := []struct {
		name        string
		content     string
		expected    []string
		expectError bool
	}{
		{
			name:     "lists_paths",
			content:  "paths:\n  - src\n  - README.md\n",
			expected: []string{"src", "README.md"},
		},
		{
			name:     "trims_and_drops_blank_entries",
			content:  "paths:\n  - '  src  '\n  - ''\n  - docs\n",
			expected: []string{"src", "docs"},
		},
		{
			name:     "empty_document",
			content:  "",
			expected: []string{},
		},
		{
			name:        "malformed_yaml",
			content:     "paths: [unterminated",
			expectError: true,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			manifestPath := filepath.Join(t.TempDir(), "pack.yaml")
			mustWriteFile(t, manifestPath, testCase.content)

			selections, loadError := loadSelectionManifest(manifestPath)
			if testCase.expectError {
				if loadError == nil {
					t.Fatalf("expected parse error")
				}
				return
			}
			if loadError != nil {
				t.Fatalf("load manifest: %v", loadError)
			}
			if !reflect.DeepEqual(selections, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, selections)
			}
		})
	}
}

func TestLoadSelectionManifestMissingFile(t *testing.T) {
	_, loadError := loadSelectionManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	if loadError == nil {
		t.Fatalf("expected error for missing manifest")
	}
}
