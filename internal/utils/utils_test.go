package utils_test

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/temirov/ctxd/internal/utils"
)

func TestDeduplicateStrings(t *testing.T) {
	testCases := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "empty", input: nil, expected: []string{}},
		{name: "no duplicates", input: []string{"a", "b"}, expected: []string{"a", "b"}},
		{name: "preserves first occurrence", input: []string{"b", "a", "b", "a"}, expected: []string{"b", "a"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result := utils.DeduplicateStrings(testCase.input)
			if !reflect.DeepEqual(result, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, result)
			}
		})
	}
}

func TestRelativePathOrSelf(t *testing.T) {
	rootDirectory := t.TempDir()
	nestedPath := filepath.Join(rootDirectory, "sub", "file.txt")

	testCases := []struct {
		name     string
		fullPath string
		root     string
		expected string
	}{
		{name: "same directory", fullPath: rootDirectory, root: rootDirectory, expected: "."},
		{name: "nested file", fullPath: nestedPath, root: rootDirectory, expected: "sub/file.txt"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result := utils.RelativePathOrSelf(testCase.fullPath, testCase.root)
			if result != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, result)
			}
		})
	}
}

func TestIsBinary(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{name: "empty", data: nil, expected: false},
		{name: "plain text", data: []byte("package main\n"), expected: false},
		{name: "nul byte", data: []byte{0x00, 0x01}, expected: true},
		{name: "invalid utf8", data: []byte{0xff, 0xfe, 0xfd}, expected: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result := utils.IsBinary(testCase.data)
			if result != testCase.expected {
				t.Fatalf("expected %v, got %v", testCase.expected, result)
			}
		})
	}
}
