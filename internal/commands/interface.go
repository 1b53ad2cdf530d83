package commands

import (
	"context"
	"encoding/json"
	"sort"
)

// CommandHandler defines the interface for command handlers
type CommandHandler interface {
	// Handle processes a command and returns the result
	Handle(ctx context.Context, params json.RawMessage) (interface{}, error)

	// GetName returns the JSON-RPC method name
	GetName() string

	// GetDescription returns a human-readable description
	GetDescription() string

	// IsReadOnly returns true if the command only reads data
	IsReadOnly() bool
}

// StreamHandler is a command that produces many results for one request.
// Stream blocks until ctx is done or emit fails.
type StreamHandler interface {
	CommandHandler
	Stream(ctx context.Context, params json.RawMessage, emit func(result interface{}) error) error
}

// CommandRegistry manages available commands
type CommandRegistry struct {
	handlers map[string]CommandHandler
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		handlers: make(map[string]CommandHandler),
	}
}

// Register adds a command handler to the registry
func (r *CommandRegistry) Register(handler CommandHandler) {
	r.handlers[handler.GetName()] = handler
}

// Get returns a command handler by name
func (r *CommandRegistry) Get(name string) (CommandHandler, bool) {
	handler, exists := r.handlers[name]
	return handler, exists
}

// List returns all registered command names, sorted
func (r *CommandRegistry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandInfo provides information about a command
type CommandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ReadOnly    bool   `json:"read_only"`
	Streaming   bool   `json:"streaming"`
}

// Info describes every registered command, sorted by name
func (r *CommandRegistry) Info() []CommandInfo {
	infos := make([]CommandInfo, 0, len(r.handlers))
	for _, name := range r.List() {
		handler := r.handlers[name]
		_, streaming := handler.(StreamHandler)
		infos = append(infos, CommandInfo{
			Name:        handler.GetName(),
			Description: handler.GetDescription(),
			ReadOnly:    handler.IsReadOnly(),
			Streaming:   streaming,
		})
	}
	return infos
}

// CommandError represents a command-specific error
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrInvalidParams = "INVALID_PARAMS"
	ErrUnavailable   = "UNAVAILABLE"
	ErrInternal      = "INTERNAL"
	ErrNotSupported  = "NOT_SUPPORTED"
)
