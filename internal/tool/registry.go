package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"mathsgpt/internal/domain"
)

// Registry holds all available tools and invokes them. Tools are kept in
// registration order so the prompt catalog renders deterministically.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool // keyed by normalized name
	order  []string               // canonical names, registration order
	frozen bool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Register adds a tool. Names are unique ignoring case and surrounding whitespace.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("register %q: %w", t.Name(), ErrRegistryFrozen)
	}
	key := normalizeName(t.Name())
	if key == "" {
		return fmt.Errorf("register: tool name is empty")
	}
	if _, exists := r.tools[key]; exists {
		return &DuplicateToolError{Name: t.Name()}
	}
	r.tools[key] = t
	r.order = append(r.order, t.Name())
	r.logger.Debug("registered tool", "name", t.Name())
	return nil
}

// MustRegister is Register for wiring code where a duplicate is a programming error.
func (r *Registry) MustRegister(t domain.Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only. It is called when an agent takes
// ownership of the registry.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (domain.Tool, error) {
	r.mu.RLock()
	t, ok := r.tools[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name, Available: r.Names()}
	}
	return t, nil
}

// Invoke looks up a tool and runs it. Whatever the tool does, the returned
// error is either an *UnknownToolError or a *ToolError.
func (r *Registry) Invoke(ctx context.Context, name, input string) (result string, err error) {
	t, err := r.Lookup(name)
	if err != nil {
		return "", err
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", t.Name(), "panic", p)
			result = ""
			err = &ToolError{Tool: t.Name(), Kind: KindInternal, Message: fmt.Sprintf("tool panicked: %v", p)}
		}
	}()

	result, err = t.Invoke(ctx, input)
	if err == nil {
		return result, nil
	}

	var te *ToolError
	if !errors.As(err, &te) {
		te = &ToolError{Kind: KindInternal, Err: err}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			te.Kind = KindUnavailable
		}
	}
	if te.Tool == "" {
		te.Tool = t.Name()
	}
	return "", te
}

// Catalog returns the name/description pairs in registration order.
func (r *Registry) Catalog() []domain.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]domain.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[normalizeName(name)]
		specs = append(specs, domain.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
		})
	}
	return specs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
