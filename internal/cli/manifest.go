package cli

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// errorReadManifestFormat reports a failure reading the manifest file.
	errorReadManifestFormat = "read manifest %s: %w"
	// errorParseManifestFormat reports a failure parsing the manifest file.
	errorParseManifestFormat = "parse manifest %s: %w"
)

// selectionManifest is the YAML document accepted by the pack --manifest flag.
type selectionManifest struct {
	Paths []string `yaml:"paths"`
}

// loadSelectionManifest reads a YAML manifest and returns its selection paths
// with surrounding whitespace trimmed and blank entries dropped.
func loadSelectionManifest(manifestPath string) ([]string, error) {
	manifestBytes, readError := os.ReadFile(manifestPath) // #nosec G304
	if readError != nil {
		return nil, fmt.Errorf(errorReadManifestFormat, manifestPath, readError)
	}
	var manifest selectionManifest
	if unmarshalError := yaml.Unmarshal(manifestBytes, &manifest); unmarshalError != nil {
		return nil, fmt.Errorf(errorParseManifestFormat, manifestPath, unmarshalError)
	}
	selections := make([]string, 0, len(manifest.Paths))
	for _, manifestPathEntry := range manifest.Paths {
		trimmedEntry := strings.TrimSpace(manifestPathEntry)
		if trimmedEntry == "" {
			continue
		}
		selections = append(selections, trimmedEntry)
	}
	return selections, nil
}
