package scheduler

import (
	"context"
	"sort"

	"metasbot/internal/storage"
)

// Handler executes one report job: data extraction, rendering and delivery
// are its business, not the scheduler's. templateContent is raw template text
// ("" when no template exists); substitution is the handler's responsibility
// since placeholder sets vary per job type.
type Handler interface {
	Run(ctx context.Context, recipients []storage.Contact, templateContent string) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, recipients []storage.Contact, templateContent string) error

func (f HandlerFunc) Run(ctx context.Context, recipients []storage.Contact, templateContent string) error {
	return f(ctx, recipients, templateContent)
}

// Registry is the static definition-key -> handler table, built once at
// startup and read-only afterwards.
type Registry struct {
	m map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{m: map[string]Handler{}}
}

func (r *Registry) Register(key string, h Handler) {
	r.m[key] = h
}

// Lookup returns the handler for key. A miss is not an error here; callers
// decide whether it is fatal for their flow.
func (r *Registry) Lookup(key string) (Handler, bool) {
	h, ok := r.m[key]
	return h, ok
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.m))
	for k := range r.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
