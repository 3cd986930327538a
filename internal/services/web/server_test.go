package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/temirov/ctxd/internal/aggregate"
	"github.com/temirov/ctxd/internal/ignore"
	"github.com/temirov/ctxd/internal/index"
	"github.com/temirov/ctxd/internal/services/web"
	"github.com/temirov/ctxd/internal/types"
)

const (
	serverStartTimeout = 2 * time.Second
	buildWaitTimeout   = 5 * time.Second
	buildPollInterval  = 25 * time.Millisecond
	watcherSettleDelay = 100 * time.Millisecond
)

func mustMkdir(t *testing.T, directoryPath string) {
	t.Helper()
	if err := os.MkdirAll(directoryPath, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", directoryPath, err)
	}
}

func mustWriteFile(t *testing.T, filePath string, content string) {
	t.Helper()
	if err := os.WriteFile(filePath, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", filePath, err)
	}
}

// newProjectFixture creates a repository with one ignored log file, one
// source file, and a README.
func newProjectFixture(t *testing.T) string {
	t.Helper()
	baseDir := t.TempDir()
	mustMkdir(t, filepath.Join(baseDir, ".git"))
	mustMkdir(t, filepath.Join(baseDir, "src"))
	mustWriteFile(t, filepath.Join(baseDir, ".gitignore"), "*.log\n")
	mustWriteFile(t, filepath.Join(baseDir, "README.md"), "hello\n")
	mustWriteFile(t, filepath.Join(baseDir, "src", "main.go"), "package main\n")
	mustWriteFile(t, filepath.Join(baseDir, "src", "debug.log"), "noise\n")
	return baseDir
}

func newServerConfig(baseDir string) web.Config {
	resolver := ignore.NewResolver(ignore.Options{})
	return web.Config{
		Address:    "127.0.0.1:0",
		BasePath:   baseDir,
		Resolver:   resolver,
		Index:      index.New(resolver, index.Options{}),
		Aggregator: aggregate.New(resolver, aggregate.Options{}),
	}
}

// startServer runs the server until the test's context is canceled and
// returns the bound address plus the channel carrying Run's result.
func startServer(t *testing.T, ctx context.Context, config web.Config) (string, chan error) {
	t.Helper()
	server := web.NewServer(config)
	addressChannel := make(chan string, 1)
	errorChannel := make(chan error, 1)
	go func() {
		errorChannel <- server.Run(ctx, func(boundAddress string) {
			addressChannel <- boundAddress
		})
	}()
	select {
	case boundAddress := <-addressChannel:
		return boundAddress, errorChannel
	case <-time.After(serverStartTimeout):
		t.Fatalf("server did not start")
		return "", nil
	}
}

func assertShutdown(t *testing.T, cancel context.CancelFunc, errorChannel chan error) {
	t.Helper()
	cancel()
	select {
	case runError := <-errorChannel:
		if runError != nil {
			t.Fatalf("server error: %v", runError)
		}
	case <-time.After(serverStartTimeout):
		t.Fatalf("server did not stop")
	}
}

func fetchJSON(t *testing.T, ctx context.Context, client *http.Client, url string, target interface{}) int {
	t.Helper()
	request, requestError := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if requestError != nil {
		t.Fatalf("new request: %v", requestError)
	}
	response, responseError := client.Do(request)
	if responseError != nil {
		t.Fatalf("perform request: %v", responseError)
	}
	defer response.Body.Close()
	if target != nil {
		if decodeError := json.NewDecoder(response.Body).Decode(target); decodeError != nil {
			t.Fatalf("decode response: %v", decodeError)
		}
	} else {
		_, _ = io.Copy(io.Discard, response.Body)
	}
	return response.StatusCode
}

// awaitProjectStructure polls the structure endpoint until the first build
// publishes a snapshot.
func awaitProjectStructure(t *testing.T, ctx context.Context, client *http.Client, address string) types.TreeNode {
	t.Helper()
	deadline := time.Now().Add(buildWaitTimeout)
	for {
		var rootNode types.TreeNode
		statusCode := fetchJSON(t, ctx, client, "http://"+address+"/api/project-structure", &rootNode)
		if statusCode == http.StatusOK {
			return rootNode
		}
		if statusCode != http.StatusServiceUnavailable {
			t.Fatalf("unexpected structure status: %d", statusCode)
		}
		if time.Now().After(deadline) {
			t.Fatalf("index build did not complete")
		}
		time.Sleep(buildPollInterval)
	}
}

func childNames(node types.TreeNode) []string {
	names := make([]string, 0, len(node.Children))
	for _, childNode := range node.Children {
		names = append(names, childNode.Name)
	}
	return names
}

func containsName(node types.TreeNode, name string) bool {
	for _, childName := range childNames(node) {
		if childName == name {
			return true
		}
	}
	return false
}

func TestServerServesProjectStructureAndStatus(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseDir := newProjectFixture(t)
	address, errorChannel := startServer(t, ctx, newServerConfig(baseDir))
	client := &http.Client{Timeout: serverStartTimeout}

	rootNode := awaitProjectStructure(t, ctx, client, address)
	if rootNode.Kind != types.NodeKindDirectory {
		t.Fatalf("expected directory root, got %q", rootNode.Kind)
	}
	if !containsName(rootNode, "src") || !containsName(rootNode, "README.md") {
		t.Fatalf("expected src and README.md in root, got %v", childNames(rootNode))
	}
	if containsName(rootNode, "debug.log") || containsName(rootNode, ".git") {
		t.Fatalf("expected excluded entries to be absent, got %v", childNames(rootNode))
	}

	var status types.IndexStatus
	if statusCode := fetchJSON(t, ctx, client, "http://"+address+"/api/index-status", &status); statusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", statusCode)
	}
	if !status.Valid {
		t.Fatalf("expected valid index, got %+v", status)
	}
	if status.Fingerprint == "" || status.BuiltAt == "" {
		t.Fatalf("expected fingerprint and build time, got %+v", status)
	}

	var health map[string]string
	if statusCode := fetchJSON(t, ctx, client, "http://"+address+"/healthz", &health); statusCode != http.StatusOK {
		t.Fatalf("unexpected health status code: %d", statusCode)
	}
	if health["status"] != "ok" {
		t.Fatalf("expected ok health status, got %v", health)
	}

	assertShutdown(t, cancel, errorChannel)
}

func TestServerReportsUnavailableStructure(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	absentBase := filepath.Join(t.TempDir(), "absent")
	address, errorChannel := startServer(t, ctx, newServerConfig(absentBase))
	client := &http.Client{Timeout: serverStartTimeout}

	var body map[string]string
	statusCode := fetchJSON(t, ctx, client, "http://"+address+"/api/project-structure", &body)
	if statusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", statusCode)
	}
	if body["error"] == "" {
		t.Fatalf("expected error body, got %v", body)
	}

	assertShutdown(t, cancel, errorChannel)
}

func TestServerExplainsExclusions(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseDir := newProjectFixture(t)
	address, errorChannel := startServer(t, ctx, newServerConfig(baseDir))
	client := &http.Client{Timeout: serverStartTimeout}

	var diagnostic types.ExclusionDiagnostic
	statusCode := fetchJSON(t, ctx, client, "http://"+address+"/api/exclusion?path=src/debug.log", &diagnostic)
	if statusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", statusCode)
	}
	if !diagnostic.Excluded || !diagnostic.Exists {
		t.Fatalf("expected existing excluded path, got %+v", diagnostic)
	}
	if len(diagnostic.MatchingPatterns) == 0 {
		t.Fatalf("expected matching patterns, got %+v", diagnostic)
	}

	var errorBody map[string]string
	statusCode = fetchJSON(t, ctx, client, "http://"+address+"/api/exclusion", &errorBody)
	if statusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing path, got %d", statusCode)
	}

	assertShutdown(t, cancel, errorChannel)
}

func TestServerProcessesSelections(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseDir := newProjectFixture(t)
	address, errorChannel := startServer(t, ctx, newServerConfig(baseDir))
	client := &http.Client{Timeout: serverStartTimeout}

	requestBody := bytes.NewReader([]byte(`{"paths":["src","README.md"]}`))
	request, requestError := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+address+"/api/process", requestBody)
	if requestError != nil {
		t.Fatalf("new request: %v", requestError)
	}
	response, responseError := client.Do(request)
	if responseError != nil {
		t.Fatalf("perform request: %v", responseError)
	}
	documentBytes, readError := io.ReadAll(response.Body)
	response.Body.Close()
	if readError != nil {
		t.Fatalf("read response: %v", readError)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", response.StatusCode)
	}
	if contentType := response.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("unexpected content type: %q", contentType)
	}
	document := string(documentBytes)
	if !strings.Contains(document, "README.md") || !strings.Contains(document, "src/main.go") {
		t.Fatalf("expected selection blocks in document")
	}
	if strings.Contains(document, "debug.log") {
		t.Fatalf("expected ignored file to be absent from document")
	}
	if strings.Index(document, "README.md") > strings.Index(document, "src/main.go") {
		t.Fatalf("expected blocks ordered by relative path")
	}

	badRequest, badRequestError := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+address+"/api/process", strings.NewReader("{"))
	if badRequestError != nil {
		t.Fatalf("new request: %v", badRequestError)
	}
	badResponse, badResponseError := client.Do(badRequest)
	if badResponseError != nil {
		t.Fatalf("perform request: %v", badResponseError)
	}
	_, _ = io.Copy(io.Discard, badResponse.Body)
	badResponse.Body.Close()
	if badResponse.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", badResponse.StatusCode)
	}

	assertShutdown(t, cancel, errorChannel)
}

func TestServerRebuildsIndexOnDemand(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseDir := newProjectFixture(t)
	address, errorChannel := startServer(t, ctx, newServerConfig(baseDir))
	client := &http.Client{Timeout: serverStartTimeout}
	awaitProjectStructure(t, ctx, client, address)

	request, requestError := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+address+"/api/rebuild-index", nil)
	if requestError != nil {
		t.Fatalf("new request: %v", requestError)
	}
	response, responseError := client.Do(request)
	if responseError != nil {
		t.Fatalf("perform request: %v", responseError)
	}
	var body map[string]string
	decodeError := json.NewDecoder(response.Body).Decode(&body)
	response.Body.Close()
	if decodeError != nil {
		t.Fatalf("decode response: %v", decodeError)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", response.StatusCode)
	}
	if body["status"] != "rebuilding" {
		t.Fatalf("expected rebuilding status, got %v", body)
	}

	assertShutdown(t, cancel, errorChannel)
}

func TestServerRejectsUnsupportedMethods(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseDir := newProjectFixture(t)
	address, errorChannel := startServer(t, ctx, newServerConfig(baseDir))
	client := &http.Client{Timeout: serverStartTimeout}

	testCases := []struct {
		name   string
		method string
		path   string
	}{
		{name: "post_structure", method: http.MethodPost, path: "/api/project-structure"},
		{name: "post_status", method: http.MethodPost, path: "/api/index-status"},
		{name: "get_rebuild", method: http.MethodGet, path: "/api/rebuild-index"},
		{name: "post_exclusion", method: http.MethodPost, path: "/api/exclusion"},
		{name: "get_process", method: http.MethodGet, path: "/api/process"},
		{name: "post_health", method: http.MethodPost, path: "/healthz"},
	}

	for _, testCase := range testCases {
		request, requestError := http.NewRequestWithContext(ctx, testCase.method, "http://"+address+testCase.path, nil)
		if requestError != nil {
			t.Fatalf("%s: new request: %v", testCase.name, requestError)
		}
		response, responseError := client.Do(request)
		if responseError != nil {
			t.Fatalf("%s: perform request: %v", testCase.name, responseError)
		}
		_, _ = io.Copy(io.Discard, response.Body)
		response.Body.Close()
		if response.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", testCase.name, response.StatusCode)
		}
	}

	assertShutdown(t, cancel, errorChannel)
}

func TestWatcherRebuildsOnIgnoreFileChange(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	baseDir := newProjectFixture(t)
	config := newServerConfig(baseDir)
	config.Watch = true
	address, errorChannel := startServer(t, ctx, config)
	client := &http.Client{Timeout: serverStartTimeout}

	rootNode := awaitProjectStructure(t, ctx, client, address)
	if !containsName(rootNode, "README.md") {
		t.Fatalf("expected README.md before rule change, got %v", childNames(rootNode))
	}

	// Give the watcher time to register before mutating the ignore file.
	time.Sleep(watcherSettleDelay)
	mustWriteFile(t, filepath.Join(baseDir, ".gitignore"), "*.log\nREADME.md\n")

	deadline := time.Now().Add(buildWaitTimeout)
	for {
		var refreshedRoot types.TreeNode
		statusCode := fetchJSON(t, ctx, client, "http://"+address+"/api/project-structure", &refreshedRoot)
		if statusCode == http.StatusOK && !containsName(refreshedRoot, "README.md") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("index did not rebuild after ignore file change")
		}
		time.Sleep(buildPollInterval)
	}

	assertShutdown(t, cancel, errorChannel)
}
