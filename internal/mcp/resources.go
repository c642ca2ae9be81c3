package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/events"
	"github.com/Aman-CERP/mcb/internal/telemetry"
)

// MaxResourceSize is the largest file served as a resource (1MB).
const MaxResourceSize = 1024 * 1024

// Fixed resource URIs.
const (
	StatusURI    = "mcb://status"
	ProvidersURI = "mcb://providers"
)

// StatusOutput is the body of the status resource.
type StatusOutput struct {
	Collection app.CollectionStats         `json:"collection"`
	Health     events.HealthCheckCompleted `json:"health"`
	Telemetry  telemetry.Snapshot          `json:"telemetry"`
	Embeddings app.EmbeddingInfo           `json:"embeddings"`
}

func (s *Server) registerStatusResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "status",
		URI:         StatusURI,
		Description: "Collection counts, provider health and search/indexing telemetry",
		MIMEType:    "application/json",
	}, s.handleStatusResource)
	s.mcp.AddResource(&mcp.Resource{
		Name:        "providers",
		URI:         ProvidersURI,
		Description: "Registered providers per port and the active one",
		MIMEType:    "application/json",
	}, s.handleProvidersResource)
}

func (s *Server) handleStatusResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := s.svc.Stats(ctx, s.collection)
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(StatusURI, StatusOutput{
		Collection: stats,
		Health:     s.svc.Health(ctx),
		Telemetry:  s.svc.Telemetry(),
		Embeddings: s.svc.Embedding(),
	})
}

func (s *Server) handleProvidersResource(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(ProvidersURI, s.svc.Providers())
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "application/json", Text: string(body)}},
	}, nil
}

// RegisterResources exposes every live file of the served collection as a
// file:// resource. Files indexed after the call are added by a later call.
func (s *Server) RegisterResources(ctx context.Context) (int, error) {
	if s.rootPath == "" {
		return 0, NewInvalidParamsError("root path must be set before registering resources")
	}
	files, err := s.svc.IndexedFiles(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to list indexed files: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, path := range files {
		if _, ok := s.resources[path]; ok || !isValidPath(path) {
			continue
		}
		s.registerFileResource(path)
		s.resources[path] = struct{}{}
		added++
	}
	s.logger.Info("mcp_resources_registered",
		slog.String("collection", s.collection),
		slog.Int("added", added),
		slog.Int("total", len(s.resources)))
	return added, nil
}

func (s *Server) registerFileResource(path string) {
	desc := path
	if info, err := os.Stat(filepath.Join(s.rootPath, path)); err == nil {
		desc = fmt.Sprintf("%s (%s)", path, humanSize(info.Size()))
	}
	s.mcp.AddResource(&mcp.Resource{
		Name:        filepath.Base(path),
		URI:         fileURI(path),
		Description: desc,
		MIMEType:    MimeTypeForPath(path),
	}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.readFile(path)
	})
}

func fileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// readFile serves one registered file, relative to the root.
func (s *Server) readFile(relativePath string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(relativePath) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", relativePath))
	}
	s.mu.Lock()
	_, ok := s.resources[relativePath]
	s.mu.Unlock()
	if !ok {
		return nil, NewResourceNotFoundError(fileURI(relativePath))
	}

	fullPath := filepath.Join(s.rootPath, relativePath)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", relativePath)}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      fileURI(relativePath),
			MIMEType: MimeTypeForPath(relativePath),
			Text:     string(content),
		}},
	}, nil
}

// isValidPath rejects empty, absolute and escaping paths.
func isValidPath(path string) bool {
	if path == "" || filepath.IsAbs(path) {
		return false
	}
	// Windows drive letters.
	if len(path) >= 2 && path[1] == ':' {
		return false
	}
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return false
		}
	}
	return true
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
