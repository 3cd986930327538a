// Package web exposes the index snapshot and selection processing over HTTP.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/ctxd/internal/aggregate"
	"github.com/temirov/ctxd/internal/ignore"
	"github.com/temirov/ctxd/internal/index"
	"github.com/temirov/ctxd/internal/utils"
)

const (
	defaultListenAddress    = "127.0.0.1:8606"
	defaultShutdownDuration = 5 * time.Second
	headerContentType       = "Content-Type"
	mimeTypeJSON            = "application/json"
	mimeTypeText            = "text/plain; charset=utf-8"

	projectStructurePath = "/api/project-structure"
	indexStatusPath      = "/api/index-status"
	rebuildIndexPath     = "/api/rebuild-index"
	exclusionPath        = "/api/exclusion"
	processPath          = "/api/process"
	healthPath           = "/healthz"

	pathQueryParameter = "path"

	errorFieldName            = "error"
	statusFieldName           = "status"
	versionFieldName          = "version"
	errorIndexNotBuilt        = "index is not built yet"
	errorMissingPathParameter = "missing path parameter"
	errorDecodeBodyFormat     = "decode request body: %v"
	errorProcessFormat        = "process selection: %v"
	statusRebuilding          = "rebuilding"
	statusOK                  = "ok"

	errorListenFormat   = "listen on %s: %w"
	errorServeFormat    = "serve http: %w"
	errorShutdownFormat = "shutdown http: %w"
)

// Config defines runtime options for the web service.
type Config struct {
	// Address is the TCP listen address. Empty selects the default.
	Address string
	// BasePath is the project base directory every endpoint operates on.
	BasePath string
	// Resolver answers exclusion queries.
	Resolver *ignore.Resolver
	// Index holds the project structure snapshot.
	Index *index.Index
	// Aggregator renders selection documents.
	Aggregator *aggregate.Aggregator
	// Watch enables the ignore-file watcher that invalidates the index.
	Watch bool
	// ShutdownTimeout bounds the graceful shutdown. Zero selects the default.
	ShutdownTimeout time.Duration
	// Logger receives service events. Nil selects a no-op logger.
	Logger *zap.Logger
}

// Server serves the project snapshot and selection processing endpoints.
type Server struct {
	config Config
	logger *zap.Logger
}

// NewServer creates a Server with defaults applied.
func NewServer(config Config) Server {
	normalized := config
	if normalized.Address == "" {
		normalized.Address = defaultListenAddress
	}
	if normalized.ShutdownTimeout <= 0 {
		normalized.ShutdownTimeout = defaultShutdownDuration
	}
	logger := normalized.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return Server{config: normalized, logger: logger}
}

// Run starts the service and blocks until the provided context is canceled.
// Startup schedules an initial index refresh; the notify callback receives
// the bound address once the listener is active.
func (server Server) Run(ctx context.Context, notify func(string)) error {
	listener, listenError := net.Listen("tcp", server.config.Address)
	if listenError != nil {
		return fmt.Errorf(errorListenFormat, server.config.Address, listenError)
	}
	actualAddress := listener.Addr().String()

	router := http.NewServeMux()
	router.HandleFunc(projectStructurePath, server.handleProjectStructure)
	router.HandleFunc(indexStatusPath, server.handleIndexStatus)
	router.HandleFunc(rebuildIndexPath, server.handleRebuildIndex)
	router.HandleFunc(exclusionPath, server.handleExclusion)
	router.HandleFunc(processPath, server.handleProcess)
	router.HandleFunc(healthPath, server.handleHealth)

	server.config.Index.Refresh(server.config.BasePath)

	httpServer := &http.Server{Handler: router}
	group, groupContext := errgroup.WithContext(ctx)

	group.Go(func() error {
		serveError := httpServer.Serve(listener)
		if serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			return fmt.Errorf(errorServeFormat, serveError)
		}
		return nil
	})

	if server.config.Watch {
		group.Go(func() error {
			return server.runWatcher(groupContext)
		})
	}

	if notify != nil {
		notify(actualAddress)
	}

	group.Go(func() error {
		<-groupContext.Done()
		shutdownContext, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancel()
		shutdownError := httpServer.Shutdown(shutdownContext)
		if shutdownError != nil && !errors.Is(shutdownError, context.Canceled) && !errors.Is(shutdownError, http.ErrServerClosed) {
			return fmt.Errorf(errorShutdownFormat, shutdownError)
		}
		return nil
	})

	return group.Wait()
}

// handleProjectStructure serves the current snapshot root. A refresh is
// requested first so a stale snapshot begins rebuilding while the previous
// tree is still served; until the first build completes the endpoint reports
// 503.
func (server Server) handleProjectStructure(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	server.config.Index.Refresh(server.config.BasePath)
	rootNode, available := server.config.Index.Structure()
	if !available {
		server.writeJSON(writer, http.StatusServiceUnavailable, map[string]string{errorFieldName: errorIndexNotBuilt})
		return
	}
	server.writeJSON(writer, http.StatusOK, rootNode)
}

func (server Server) handleIndexStatus(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	server.writeJSON(writer, http.StatusOK, server.config.Index.Status())
}

func (server Server) handleRebuildIndex(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	server.config.Index.ForceInvalidate(server.config.BasePath)
	server.writeJSON(writer, http.StatusOK, map[string]string{statusFieldName: statusRebuilding})
}

func (server Server) handleExclusion(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	relativePath := request.URL.Query().Get(pathQueryParameter)
	if relativePath == "" {
		server.writeJSON(writer, http.StatusBadRequest, map[string]string{errorFieldName: errorMissingPathParameter})
		return
	}
	lookup := server.config.Resolver.Lookup(server.config.BasePath)
	absolutePath := filepath.Join(server.config.BasePath, filepath.FromSlash(relativePath))
	server.writeJSON(writer, http.StatusOK, lookup.Diagnose(absolutePath))
}

// processRequest is the JSON body of the process endpoint.
type processRequest struct {
	Paths []string `json:"paths"`
}

func (server Server) handleProcess(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var selection processRequest
	if decodeError := json.NewDecoder(request.Body).Decode(&selection); decodeError != nil {
		server.writeJSON(writer, http.StatusBadRequest, map[string]string{errorFieldName: fmt.Sprintf(errorDecodeBodyFormat, decodeError)})
		return
	}
	document, processError := server.config.Aggregator.ProcessSelection(request.Context(), selection.Paths, server.config.BasePath)
	if processError != nil {
		server.writeJSON(writer, http.StatusInternalServerError, map[string]string{errorFieldName: fmt.Sprintf(errorProcessFormat, processError)})
		return
	}
	writer.Header().Set(headerContentType, mimeTypeText)
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte(document.Content))
}

func (server Server) handleHealth(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	server.writeJSON(writer, http.StatusOK, map[string]string{
		statusFieldName:  statusOK,
		versionFieldName: utils.GetApplicationVersion(),
	})
}

func (server Server) writeJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	var buffer bytes.Buffer
	if encodeError := json.NewEncoder(&buffer).Encode(payload); encodeError != nil {
		fallback := map[string]string{errorFieldName: fmt.Sprintf("encode response: %v", encodeError)}
		writer.Header().Set(headerContentType, mimeTypeJSON)
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(fallback)
		return
	}
	writer.Header().Set(headerContentType, mimeTypeJSON)
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(buffer.Bytes())
}
