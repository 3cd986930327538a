// Package aggregate expands a selection of project paths into a single
// rendered text document for downstream language-model consumption.
package aggregate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/temirov/ctxd/internal/ignore"
	"github.com/temirov/ctxd/internal/tokenizer"
	"github.com/temirov/ctxd/internal/utils"
)

const (
	// errorAbsolutePathFormat reports failure to resolve an absolute path.
	errorAbsolutePathFormat = "getting absolute path for %s: %w"

	// fileBlockFormat renders one document block: the base-relative path in a
	// text fence, then the content in a fence tagged with the detected
	// language.
	fileBlockFormat = "# File\n\n```text\n%s\n```\n\n# Content\n\n```%s\n%s\n```\n\n"
	// placeholderTooLargeFormat replaces content of files above the size
	// threshold.
	placeholderTooLargeFormat = "[File too large - %.2f MB]"
	// placeholderUnreadable replaces content that cannot be read as text.
	placeholderUnreadable = "[Unable to process file]"

	defaultMaxFileSize = 10 * 1024 * 1024
	maxReadWorkers     = 32
	bytesPerMebibyte   = 1024 * 1024
)

// Options configures an Aggregator.
type Options struct {
	// MaxFileSize is the content size threshold in bytes above which a file
	// is rendered as a too-large placeholder. Zero selects 10 MiB.
	MaxFileSize int64
	// Workers caps concurrent file reads. Zero selects
	// min(32, 4 x available CPUs).
	Workers int
	// TokenCounter, when set, measures the rendered document and fills the
	// document totals.
	TokenCounter tokenizer.Counter
	// TokenModel names the tokenizer reported alongside the token total.
	TokenModel string
}

// Totals summarizes a rendered document.
type Totals struct {
	// Files is the number of blocks in the document.
	Files int `json:"files"`
	// Bytes is the rendered document length.
	Bytes int64 `json:"bytes"`
	// Tokens is the token estimate for the document. Zero when no counter
	// was configured.
	Tokens int `json:"tokens,omitempty"`
	// Model names the tokenizer that produced Tokens.
	Model string `json:"model,omitempty"`
}

// Document is the aggregation result: the concatenated file blocks in
// base-relative path order, plus summary totals.
type Document struct {
	Content string
	Totals  Totals
}

// Aggregator renders selections of project paths into documents. It is
// stateless apart from the shared ignore resolver and safe for concurrent
// use.
type Aggregator struct {
	resolver     *ignore.Resolver
	maxFileSize  int64
	workers      int
	tokenCounter tokenizer.Counter
	tokenModel   string
}

// New returns an Aggregator with defaults applied.
func New(resolver *ignore.Resolver, options Options) *Aggregator {
	maxFileSize := options.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	workerCount := options.Workers
	if workerCount <= 0 {
		workerCount = 4 * runtime.NumCPU()
		if workerCount > maxReadWorkers {
			workerCount = maxReadWorkers
		}
		if workerCount < 1 {
			workerCount = 1
		}
	}
	return &Aggregator{
		resolver:     resolver,
		maxFileSize:  maxFileSize,
		workers:      workerCount,
		tokenCounter: options.TokenCounter,
		tokenModel:   options.TokenModel,
	}
}

// selectedFile pairs a file's absolute path with its base-relative path used
// for ordering and block headers.
type selectedFile struct {
	absolutePath string
	relativePath string
}

// ProcessSelection expands selectedPaths (files and directories, relative to
// basePath) into the deduplicated, ignore-filtered file list and renders the
// document. Nonexistent selections are skipped. Files are read concurrently
// but concatenated in base-relative path order, so identical inputs over an
// unchanged tree produce identical output.
func (aggregator *Aggregator) ProcessSelection(ctx context.Context, selectedPaths []string, basePath string) (Document, error) {
	absoluteBasePath, absolutePathError := filepath.Abs(basePath)
	if absolutePathError != nil {
		return Document{}, fmt.Errorf(errorAbsolutePathFormat, basePath, absolutePathError)
	}
	lookup := aggregator.resolver.Lookup(absoluteBasePath)

	collectedFiles := make(map[string]struct{})
	for _, selectedPath := range selectedPaths {
		fullPath := filepath.Join(absoluteBasePath, filepath.FromSlash(selectedPath))
		pathInfo, statError := os.Stat(fullPath)
		if statError != nil {
			continue
		}
		isDirectory := pathInfo.IsDir()
		if lookup.IsExcluded(fullPath, &isDirectory) {
			continue
		}
		if isDirectory {
			collectFiles(fullPath, lookup, collectedFiles)
			continue
		}
		collectedFiles[fullPath] = struct{}{}
	}

	sortedFiles := make([]selectedFile, 0, len(collectedFiles))
	for absolutePath := range collectedFiles {
		sortedFiles = append(sortedFiles, selectedFile{
			absolutePath: absolutePath,
			relativePath: utils.RelativePathOrSelf(absolutePath, absoluteBasePath),
		})
	}
	sort.Slice(sortedFiles, func(leftIndex int, rightIndex int) bool {
		return sortedFiles[leftIndex].relativePath < sortedFiles[rightIndex].relativePath
	})

	renderedBlocks := make([]string, len(sortedFiles))
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(aggregator.workers)
	for fileIndex, file := range sortedFiles {
		group.Go(func() error {
			if contextError := groupContext.Err(); contextError != nil {
				return contextError
			}
			renderedBlocks[fileIndex] = aggregator.renderFile(file)
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return Document{}, waitError
	}

	document := Document{Content: strings.Join(renderedBlocks, "")}
	document.Totals = Totals{Files: len(sortedFiles), Bytes: int64(len(document.Content))}
	if aggregator.tokenCounter != nil {
		countResult, countError := tokenizer.CountBytes(aggregator.tokenCounter, []byte(document.Content))
		if countError == nil && countResult.Counted {
			document.Totals.Tokens = countResult.Tokens
			document.Totals.Model = aggregator.tokenModel
		}
	}
	return document, nil
}

// collectFiles walks directoryPath, pruning excluded subdirectories before
// descending, and records every surviving file. Unreadable directories
// contribute nothing.
func collectFiles(directoryPath string, lookup *ignore.Lookup, collectedFiles map[string]struct{}) {
	directoryEntries, readDirectoryError := os.ReadDir(directoryPath)
	if readDirectoryError != nil {
		return
	}
	for _, directoryEntry := range directoryEntries {
		entryIsDirectory := directoryEntry.IsDir()
		entryPath := filepath.Join(directoryPath, directoryEntry.Name())
		if lookup.IsExcluded(entryPath, &entryIsDirectory) {
			continue
		}
		if entryIsDirectory {
			collectFiles(entryPath, lookup, collectedFiles)
			continue
		}
		collectedFiles[entryPath] = struct{}{}
	}
}

// renderFile produces the document block for one file. Files above the size
// threshold are not read at all; unreadable or binary content yields the
// generic placeholder. Every outcome uses the same block template.
func (aggregator *Aggregator) renderFile(file selectedFile) string {
	fenceTag := languageTag(file.relativePath)

	fileInfo, statError := os.Stat(file.absolutePath)
	if statError != nil {
		return fmt.Sprintf(fileBlockFormat, file.relativePath, fenceTag, placeholderUnreadable)
	}
	if fileInfo.Size() > aggregator.maxFileSize {
		placeholder := fmt.Sprintf(placeholderTooLargeFormat, float64(fileInfo.Size())/bytesPerMebibyte)
		return fmt.Sprintf(fileBlockFormat, file.relativePath, fenceTag, placeholder)
	}

	fileBytes, readError := os.ReadFile(file.absolutePath) // #nosec G304
	if readError != nil || utils.IsBinary(fileBytes) {
		return fmt.Sprintf(fileBlockFormat, file.relativePath, fenceTag, placeholderUnreadable)
	}
	return fmt.Sprintf(fileBlockFormat, file.relativePath, fenceTag, string(fileBytes))
}
