package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/temirov/ctxd/internal/ignore"
	"github.com/temirov/ctxd/internal/types"
)

const (
	defaultSnapshotTTL = 24 * time.Hour

	logMessageBuildFailed    = "index build failed"
	logFieldBasePath         = "base_path"
	fingerprintFormat        = "%016x"
	fingerprintNodeSeparator = "\x00"
)

// buildFunc constructs a project tree. It is a field on Index so tests can
// observe and stall builds.
type buildFunc func(ctx context.Context, basePath string, resolver *ignore.Resolver, options BuildOptions) (*types.TreeNode, error)

// Options configures an Index.
type Options struct {
	// TTL is the snapshot age beyond which Refresh rebuilds. Zero selects
	// the 24 hour default.
	TTL time.Duration
	// Build bounds the traversal fan-out of scheduled builds.
	Build BuildOptions
	// Logger receives build failure warnings. Nil selects a no-op logger.
	Logger *zap.Logger
}

// Index holds the current project structure snapshot and enforces the
// rebuild policy: at most one build in flight, rebuild only when the
// snapshot is missing, invalidated, or older than the TTL. All methods are
// safe for concurrent use; readers never observe a partially built tree
// because a finished build swaps the whole root in under the lock.
type Index struct {
	resolver     *ignore.Resolver
	ttl          time.Duration
	buildOptions BuildOptions
	logger       *zap.Logger
	builder      buildFunc

	mutex       sync.Mutex
	root        *types.TreeNode
	valid       bool
	building    bool
	builtAt     time.Time
	fingerprint string
}

// New constructs an empty Index that resolves ignore rules through resolver.
func New(resolver *ignore.Resolver, options Options) *Index {
	snapshotTTL := options.TTL
	if snapshotTTL <= 0 {
		snapshotTTL = defaultSnapshotTTL
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		resolver:     resolver,
		ttl:          snapshotTTL,
		buildOptions: options.Build,
		logger:       logger,
		builder:      BuildTree,
	}
}

// Refresh schedules a background rebuild of the snapshot for basePath unless
// the snapshot is still fresh or a build is already running. It returns
// immediately; completion is observable through Status.
func (index *Index) Refresh(basePath string) {
	index.mutex.Lock()
	if index.valid && time.Since(index.builtAt) <= index.ttl {
		index.mutex.Unlock()
		return
	}
	if index.building {
		index.mutex.Unlock()
		return
	}
	index.building = true
	index.mutex.Unlock()

	go index.runBuild(basePath)
}

// ForceInvalidate drops the memoized ignore rule sets, marks the snapshot
// invalid, and schedules a rebuild under the usual single-build rule.
func (index *Index) ForceInvalidate(basePath string) {
	index.resolver.Invalidate()
	index.mutex.Lock()
	index.valid = false
	index.mutex.Unlock()
	index.Refresh(basePath)
}

// Structure returns the current snapshot root. The boolean result is false
// until the first successful build publishes a tree.
func (index *Index) Structure() (*types.TreeNode, bool) {
	index.mutex.Lock()
	defer index.mutex.Unlock()
	if index.root == nil {
		return nil, false
	}
	return index.root, true
}

// Status reports the snapshot lifecycle state.
func (index *Index) Status() types.IndexStatus {
	index.mutex.Lock()
	defer index.mutex.Unlock()
	status := types.IndexStatus{
		Valid:       index.valid,
		Building:    index.building,
		Fingerprint: index.fingerprint,
	}
	if !index.builtAt.IsZero() {
		status.BuiltAt = index.builtAt.UTC().Format(time.RFC3339)
	}
	return status
}

// runBuild executes one scheduled build. The building flag is reset whether
// the build succeeds or fails; only a success replaces the published
// snapshot, so a failed rebuild leaves the previous tree available.
func (index *Index) runBuild(basePath string) {
	rootNode, buildError := index.builder(context.Background(), basePath, index.resolver, index.buildOptions)

	index.mutex.Lock()
	defer index.mutex.Unlock()
	index.building = false
	if buildError != nil {
		index.logger.Warn(logMessageBuildFailed, zap.String(logFieldBasePath, basePath), zap.Error(buildError))
		return
	}
	index.root = rootNode
	index.valid = true
	index.builtAt = time.Now()
	index.fingerprint = Fingerprint(rootNode)
}

// Fingerprint computes a stable content hash over the tree's paths and
// kinds. Two snapshots fingerprint identically exactly when they contain the
// same entries in the same order.
func Fingerprint(root *types.TreeNode) string {
	hasher := xxh3.New()
	hashNode(hasher, root)
	return fmt.Sprintf(fingerprintFormat, hasher.Sum64())
}

func hashNode(hasher *xxh3.Hasher, node *types.TreeNode) {
	if node == nil {
		return
	}
	_, _ = hasher.WriteString(node.Path)
	_, _ = hasher.WriteString(fingerprintNodeSeparator)
	_, _ = hasher.WriteString(node.Kind)
	_, _ = hasher.WriteString(fingerprintNodeSeparator)
	for _, childNode := range node.Children {
		hashNode(hasher, childNode)
	}
}
