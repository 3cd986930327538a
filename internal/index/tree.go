// Package index builds and caches the ignore-filtered project structure
// snapshot.
package index

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
	"github.com/temirov/ctxd/internal/types"
)

const (
	// errorAbsolutePathFormat reports failure to resolve an absolute path.
	errorAbsolutePathFormat = "getting absolute path for %s: %w"
	// errorStatBaseFormat reports failure to stat the base path.
	errorStatBaseFormat = "stat base path %s: %w"
	// errorBaseNotDirectoryFormat reports a base path that is not a directory.
	errorBaseNotDirectoryFormat = "base path %s is not a directory"

	defaultWorkerCount   = 8
	defaultParallelDepth = 2
)

// BuildOptions bounds the traversal fan-out.
type BuildOptions struct {
	// Workers caps the number of directory scans running in parallel.
	// Zero selects the default.
	Workers int
	// ParallelDepth is the tree depth below which subdirectory scans may be
	// handed to the worker pool; deeper directories are scanned sequentially
	// inside the worker that reached them. Zero selects the default.
	ParallelDepth int
}

func (options BuildOptions) withDefaults() BuildOptions {
	resolved := options
	if resolved.Workers <= 0 {
		resolved.Workers = defaultWorkerCount
		if processorCount := runtime.NumCPU(); processorCount < resolved.Workers {
			resolved.Workers = processorCount
		}
	}
	if resolved.ParallelDepth <= 0 {
		resolved.ParallelDepth = defaultParallelDepth
	}
	return resolved
}

// BuildTree walks basePath and returns the project structure as a TreeNode
// whose root carries an empty relative path. The resolver's rule sets are
// resolved once for the whole walk. Directories are scanned in a single
// ReadDir pass, excluded entries are dropped before recursion, and children
// are sorted directories-first then case-insensitively by name, so the result
// is deterministic regardless of worker scheduling. Directories that cannot
// be read contribute no children.
func BuildTree(ctx context.Context, basePath string, resolver *ignore.Resolver, options BuildOptions) (*types.TreeNode, error) {
	absoluteBasePath, absolutePathError := filepath.Abs(basePath)
	if absolutePathError != nil {
		return nil, fmt.Errorf(errorAbsolutePathFormat, basePath, absolutePathError)
	}
	baseInfo, baseStatError := os.Stat(absoluteBasePath)
	if baseStatError != nil {
		return nil, fmt.Errorf(errorStatBaseFormat, absoluteBasePath, baseStatError)
	}
	if !baseInfo.IsDir() {
		return nil, fmt.Errorf(errorBaseNotDirectoryFormat, absoluteBasePath)
	}

	resolvedOptions := options.withDefaults()
	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(resolvedOptions.Workers)

	walker := &treeWalker{
		group:         group,
		groupContext:  groupContext,
		lookup:        resolver.Lookup(absoluteBasePath),
		basePath:      absoluteBasePath,
		parallelDepth: resolvedOptions.ParallelDepth,
	}

	rootNode := &types.TreeNode{
		Path:     "",
		Name:     filepath.Base(absoluteBasePath),
		Kind:     types.NodeKindDirectory,
		Children: []*types.TreeNode{},
	}
	group.Go(func() error {
		return walker.scanDirectory(absoluteBasePath, rootNode, 0)
	})
	if waitError := group.Wait(); waitError != nil {
		return nil, waitError
	}
	return rootNode, nil
}

// treeWalker carries the shared traversal state. Each TreeNode is populated
// by exactly one goroutine, so nodes need no locking.
type treeWalker struct {
	group         *errgroup.Group
	groupContext  context.Context
	lookup        *ignore.Lookup
	basePath      string
	parallelDepth int
}

// scanDirectory lists directoryPath, attaches the surviving entries to node
// in sorted order, and recurses into subdirectories. Scans of directories
// above parallelDepth are offered to the worker pool; when the pool is
// saturated or the directory sits deeper, the scan proceeds inline.
func (walker *treeWalker) scanDirectory(directoryPath string, node *types.TreeNode, depth int) error {
	if contextError := walker.groupContext.Err(); contextError != nil {
		return contextError
	}

	directoryEntries, readDirectoryError := os.ReadDir(directoryPath)
	if readDirectoryError != nil {
		return nil
	}

	type survivingEntry struct {
		name        string
		isDirectory bool
	}
	survivors := make([]survivingEntry, 0, len(directoryEntries))
	for _, directoryEntry := range directoryEntries {
		entryIsDirectory := directoryEntry.IsDir()
		entryAbsolutePath := filepath.Join(directoryPath, directoryEntry.Name())
		if walker.lookup.IsExcluded(entryAbsolutePath, &entryIsDirectory) {
			continue
		}
		survivors = append(survivors, survivingEntry{name: directoryEntry.Name(), isDirectory: entryIsDirectory})
	}
	sort.SliceStable(survivors, func(leftIndex int, rightIndex int) bool {
		left, right := survivors[leftIndex], survivors[rightIndex]
		if left.isDirectory != right.isDirectory {
			return left.isDirectory
		}
		leftName, rightName := strings.ToLower(left.name), strings.ToLower(right.name)
		if leftName != rightName {
			return leftName < rightName
		}
		return left.name < right.name
	})

	node.Children = make([]*types.TreeNode, 0, len(survivors))
	for _, survivor := range survivors {
		childNode := &types.TreeNode{
			Path:     childRelativePath(node.Path, survivor.name),
			Name:     survivor.name,
			Kind:     types.NodeKindFile,
			Children: []*types.TreeNode{},
		}
		if survivor.isDirectory {
			childNode.Kind = types.NodeKindDirectory
		}
		node.Children = append(node.Children, childNode)

		if !survivor.isDirectory {
			continue
		}
		childAbsolutePath := filepath.Join(directoryPath, survivor.name)
		childDepth := depth + 1
		if childDepth <= walker.parallelDepth {
			scheduled := walker.group.TryGo(func() error {
				return walker.scanDirectory(childAbsolutePath, childNode, childDepth)
			})
			if scheduled {
				continue
			}
		}
		if scanError := walker.scanDirectory(childAbsolutePath, childNode, childDepth); scanError != nil {
			return scanError
		}
	}
	return nil
}

// childRelativePath joins a parent-relative path and a child name with a
// forward slash, keeping the root's children unprefixed.
func childRelativePath(parentPath string, childName string) string {
	if parentPath == "" {
		return childName
	}
	return parentPath + "/" + childName
}
