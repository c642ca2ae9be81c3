// Package mcp exposes the mcb services over the Model Context Protocol.
// Handlers are thin: they validate input, call the app and convert errors
// to the tool-layer shape.
package mcp

import (
	"errors"
	"fmt"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

// MCP error codes. The negative JSON-RPC range is shared with the protocol;
// the -320xx values are mcb specific.
const (
	ErrCodeNotFound          = -32001
	ErrCodeProviderFailed    = -32002
	ErrCodeTimeout           = -32003
	ErrCodeFileNotFound      = -32004
	ErrCodeFileTooLarge      = -32005
	ErrCodeConfiguration     = -32006
	ErrCodeDimensionMismatch = -32007

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrMissingService is returned by NewServer without a service.
var ErrMissingService = errors.New("mcp: service is required")

// MCPError is the error returned from tool and resource handlers.
type MCPError struct {
	Code    int                  `json:"code"`
	Message string               `json:"message"`
	Data    *mcberrors.ToolError `json:"data,omitempty"`
}

// Error renders the machine code first so clients can match on it.
func (e *MCPError) Error() string {
	if e.Data != nil && e.Data.Code != "" {
		return fmt.Sprintf("%s: %s", e.Data.Code, e.Message)
	}
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts a service error. Internal errors lose their text.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var me *MCPError
	if errors.As(err, &me) {
		return me
	}

	te := mcberrors.FormatForTool(err)
	return &MCPError{Code: codeFor(te), Message: te.Message, Data: te}
}

func codeFor(te *mcberrors.ToolError) int {
	if te.Code == mcberrors.ErrCodeTimeout {
		return ErrCodeTimeout
	}
	switch te.Kind {
	case mcberrors.KindInvalidArgument:
		return ErrCodeInvalidParams
	case mcberrors.KindNotFound:
		return ErrCodeNotFound
	case mcberrors.KindDimensionMismatch:
		return ErrCodeDimensionMismatch
	case mcberrors.KindConfiguration:
		return ErrCodeConfiguration
	case mcberrors.KindCancelled:
		return ErrCodeTimeout
	case mcberrors.KindTransport, mcberrors.KindUnauthorized, mcberrors.KindRateLimited:
		return ErrCodeProviderFailed
	default:
		return ErrCodeInternalError
	}
}

// NewInvalidParamsError reports a caller mistake.
func NewInvalidParamsError(msg string) *MCPError {
	return MapError(mcberrors.InvalidArgument(msg))
}

// NewResourceNotFoundError reports an unknown resource.
func NewResourceNotFoundError(uri string) *MCPError {
	return MapError(mcberrors.NotFound("resource " + uri))
}
