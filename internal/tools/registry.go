package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/amanrag/internal/auth"
	"github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultCallTimeout bounds one tool invocation.
const DefaultCallTimeout = 60 * time.Second

// Handler executes one tool call. Raw is the JSON argument object;
// handlers decode it with DecodeParams so unknown fields are rejected.
type Handler func(ctx context.Context, raw json.RawMessage) (any, error)

// Tool is one registry entry.
type Tool struct {
	Name        string
	Description string
	Tier        auth.Tier
	// Destructive tools require an explicit confirm=true argument; the
	// first call without it performs no side effect.
	Destructive bool
	// Params is the zero value of the tool's input struct, used for
	// schema publication.
	Params  any
	Handler Handler
}

// Info is the published description of a tool.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tier        string `json:"tier"`
	Destructive bool   `json:"destructive,omitempty"`
	Params      any    `json:"params,omitempty"`
}

// Registry holds the tool table and dispatches calls.
type Registry struct {
	tools      map[string]*Tool
	order      []string
	requireMFA bool
	devMode    bool
	timeout    time.Duration
	logger     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRequireMFA gates admin tools on MFA-verified principals.
func WithRequireMFA(require bool) RegistryOption {
	return func(r *Registry) { r.requireMFA = require }
}

// WithDevMode substitutes a synthetic admin principal for every call.
// Local development only.
func WithDevMode(enabled bool) RegistryOption {
	return func(r *Registry) { r.devMode = enabled }
}

// WithCallTimeout overrides the per-call deadline.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:   make(map[string]*Tool),
		timeout: DefaultCallTimeout,
		logger:  slog.Default().With("component", "tools"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Duplicate names and missing handlers are
// programming errors surfaced at startup.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return errors.New(errors.KindInternal, "tool registration requires a name")
	}
	if t.Handler == nil {
		return errors.Newf(errors.KindInternal, "tool %s has no handler", t.Name)
	}
	if _, exists := r.tools[t.Name]; exists {
		return errors.Newf(errors.KindInternal, "tool %s registered twice", t.Name)
	}
	if t.Tier == "" {
		t.Tier = auth.TierPublic
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// List returns the tools visible to a principal, in registration order.
func (r *Registry) List(p *auth.Principal) []Info {
	if r.devMode {
		p = auth.DevAdmin()
	}
	var out []Info
	for _, name := range r.order {
		t := r.tools[name]
		if !p.Tier.AtLeast(t.Tier) {
			continue
		}
		out = append(out, Info{
			Name:        t.Name,
			Description: t.Description,
			Tier:        t.Tier.String(),
			Destructive: t.Destructive,
			Params:      t.Params,
		})
	}
	return out
}

// Names returns all registered tool names sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Dispatch runs one tool call end to end: principal gate, MFA gate,
// confirmation gate, then the handler under a deadline. The result is
// always an envelope.
func (r *Registry) Dispatch(ctx context.Context, name string, raw json.RawMessage) Envelope {
	correlationID := newCorrelationID()
	started := time.Now()

	principal := auth.PrincipalFrom(ctx)
	if r.devMode {
		principal = auth.DevAdmin()
		ctx = auth.WithPrincipal(ctx, principal)
	}

	tool, ok := r.tools[name]
	if !ok {
		return Failure(correlationID, errors.NotFound("tool "+name))
	}

	if !principal.Tier.AtLeast(tool.Tier) {
		return Failure(correlationID, errors.Forbidden("this tool requires the "+tool.Tier.String()+" tier"))
	}
	if tool.Tier == auth.TierAdmin && r.requireMFA &&
		!principal.Tier.AtLeast(auth.TierService) && !principal.MFAVerified {
		return Failure(correlationID, errors.Forbidden("admin tools require a verified second factor"))
	}

	if tool.Destructive && !confirmed(raw) {
		return Success(correlationID, map[string]any{
			"confirmation_required": true,
			"message":               name + " is destructive; repeat the call with confirm=true to proceed",
		})
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := tool.Handler(ctx, raw)
	elapsed := time.Since(started)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = errors.Wrap(errors.KindTimeout, "tool call deadline exceeded", err)
		}
		r.logger.Warn("tool call failed",
			"tool", name, "tier", principal.Tier, "elapsed", elapsed,
			"correlation_id", correlationID, "error", err)
		return Failure(correlationID, err)
	}

	r.logger.Debug("tool call completed",
		"tool", name, "tier", principal.Tier, "elapsed", elapsed,
		"correlation_id", correlationID)
	return Success(correlationID, data)
}

// confirmed peeks at the confirm argument without decoding the full
// input struct.
func confirmed(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var probe struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Confirm
}

// typed adapts a parameter-struct handler to the raw Handler signature,
// decoding arguments with DecodeParams first.
func typed[T any](fn func(ctx context.Context, params *T) (any, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		params, err := DecodeParams[T](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, params)
	}
}

// DecodeParams decodes a tool argument object into T, rejecting unknown
// fields with a validation error.
func DecodeParams[T any](raw json.RawMessage) (*T, error) {
	params := new(T)
	if len(raw) == 0 {
		return params, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		return nil, errors.Wrap(errors.KindValidation, "invalid tool arguments", err)
	}
	return params, nil
}
