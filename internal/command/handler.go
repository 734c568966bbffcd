// Package command implements the control plane: a JSON-RPC socket for the
// local CLI and a Kafka command channel for remote operators.
package command

import (
	"context"
	"encoding/json"
	"fmt"

	"firestige.xyz/groundview/internal/log"
)

// Controller is the daemon side of the control plane.
type Controller interface {
	Status() Status
	Reload() error
	TriggerShutdown()
}

// Status is the daemon_status result.
type Status struct {
	Version    string        `json:"version"`
	UptimeSec  int64         `json:"uptime_sec"`
	Namespace  string        `json:"namespace"`
	Spacecraft string        `json:"spacecraft"`
	Transport  string        `json:"transport"`
	Services   []string      `json:"services"`
	Page       *PageStatus   `json:"page,omitempty"`
	Router     *RouterStatus `json:"router,omitempty"`
}

// PageStatus describes the running telemetry page.
type PageStatus struct {
	Title string `json:"title"`
	Topic string `json:"topic"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// RouterStatus describes the routing service.
type RouterStatus struct {
	Listen  string   `json:"listen"`
	Sources []string `json:"sources"`
}

// Command methods.
const (
	MethodStatus   = "daemon_status"
	MethodReload   = "config_reload"
	MethodShutdown = "daemon_shutdown"
)

// CommandHandler handles control plane commands.
type CommandHandler struct {
	controller Controller
	logger     log.Logger
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(c Controller) *CommandHandler {
	return &CommandHandler{
		controller: c,
		logger:     log.GetLogger().WithField("component", "command"),
	}
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "daemon_status"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("command error %d: %s", e.Code, e.Message)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	h.logger.WithField("method", cmd.Method).WithField("id", cmd.ID).Debug("handling command")

	switch cmd.Method {
	case MethodStatus:
		return Response{ID: cmd.ID, Result: h.controller.Status()}
	case MethodReload:
		return h.handleConfigReload(cmd)
	case MethodShutdown:
		return h.handleDaemonShutdown(cmd)
	default:
		return errorResponse(cmd.ID, ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", cmd.Method))
	}
}

func (h *CommandHandler) handleConfigReload(cmd Command) Response {
	if err := h.controller.Reload(); err != nil {
		return errorResponse(cmd.ID, ErrCodeInternalError, fmt.Sprintf("reload failed: %v", err))
	}
	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "reloaded"},
	}
}

func (h *CommandHandler) handleDaemonShutdown(cmd Command) Response {
	h.logger.Info("daemon_shutdown command received, initiating graceful shutdown")
	h.controller.TriggerShutdown()

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "shutting_down"},
	}
}

func errorResponse(id string, code int, msg string) Response {
	return Response{ID: id, Error: &ErrorInfo{Code: code, Message: msg}}
}
