package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-overlay/entity"
)

// ErrMaxDepth is returned when a cascade goes deeper than the engine allows.
var ErrMaxDepth = errors.New("cascade: max depth exceeded")

// Mode selects the operation a cascade propagates.
type Mode int

const (
	ModeDelete Mode = iota
	ModeRestore
)

func (m Mode) String() string {
	if m == ModeRestore {
		return "restore"
	}
	return "delete"
}

// Graph resolves declared relations.
type Graph interface {
	Related(ctx context.Context, owner *entity.Entity, relation string, scope entity.Scope) (entity.Related, error)
}

// Mutator applies a single row operation without propagating it further.
// A false result without error means a hook halted the operation.
type Mutator interface {
	Delete(ctx context.Context, e *entity.Entity) (bool, error)
	ForceDelete(ctx context.Context, e *entity.Entity) (bool, error)
	Restore(ctx context.Context, e *entity.Entity) (bool, error)
}

type cascadeKey struct{}

// InProgress reports whether ctx belongs to a mutation issued by an engine.
// Lifecycle reactions use it to avoid starting a nested walk.
func InProgress(ctx context.Context) bool {
	v, _ := ctx.Value(cascadeKey{}).(bool)
	return v
}

func withCascade(ctx context.Context) context.Context {
	return context.WithValue(ctx, cascadeKey{}, true)
}

// Engine walks the cascade graph of an entity with an explicit stack.
type Engine struct {
	graph    Graph
	mutator  Mutator
	maxDepth int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDepth bounds how many relation hops a walk may take. Zero means
// unbounded; the visited set still stops cycles.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) { e.maxDepth = depth }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over graph and mutator.
func NewEngine(graph Graph, mutator Mutator, opts ...Option) *Engine {
	e := &Engine{graph: graph, mutator: mutator, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type action int

const (
	actionDelete action = iota
	actionForceDelete
	actionRestore
)

func (a action) String() string {
	switch a {
	case actionForceDelete:
		return "force_delete"
	case actionRestore:
		return "restore"
	default:
		return "delete"
	}
}

// actionFor is the action n's cascade applies to its relations: force when
// n is being removed for good or cannot be trashed at all.
func actionFor(n *entity.Entity, mode Mode) action {
	if mode == ModeRestore {
		return actionRestore
	}
	if n.IsForceDeleting() || !n.Schema().SoftDeletes {
		return actionForceDelete
	}
	return actionDelete
}

type frame struct {
	node     *entity.Entity
	depth    int
	expanded bool
	applied  action
}

// Propagate applies mode to the cascade relations of root, recursively.
// The root itself is not mutated; its caller does that.
//
// Deletes run children first so every relation is read while its owner
// still exists. Restores run owners first and only descend into entities
// whose restore went through. The first failure stops the walk; mutations
// already applied stay applied.
func (en *Engine) Propagate(ctx context.Context, root *entity.Entity, mode Mode) error {
	if root == nil || len(root.Schema().Cascades) == 0 {
		return nil
	}
	ctx = withCascade(ctx)

	visited := map[string]struct{}{visitKey(root): {}}
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		i := len(stack) - 1
		f := stack[i]

		if mode == ModeDelete && f.expanded {
			stack = stack[:i]
			if f.node != root {
				if err := en.mutate(ctx, f.node, f.applied); err != nil {
					return err
				}
			}
			continue
		}

		if mode == ModeRestore {
			stack = stack[:i]
			if f.node != root {
				ok, err := en.apply(ctx, f.node, f.applied)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
		} else {
			stack[i].expanded = true
		}

		children, err := en.children(ctx, f.node, mode)
		if err != nil {
			return err
		}
		if len(children) > 0 && en.maxDepth > 0 && f.depth >= en.maxDepth {
			return goerrors.Wrap(
				fmt.Errorf("%w: %s %s at depth %d", ErrMaxDepth, f.node.Schema().Name, f.node.ID(), f.depth),
				goerrors.CategoryInternal, "cascade "+mode.String())
		}

		next := actionFor(f.node, mode)
		for j := len(children) - 1; j >= 0; j-- {
			c := children[j]
			k := visitKey(c)
			if _, seen := visited[k]; seen {
				continue
			}
			visited[k] = struct{}{}
			if next == actionForceDelete {
				c.SetForceDeleting(true)
			}
			stack = append(stack, frame{node: c, depth: f.depth + 1, applied: next})
		}
	}
	return nil
}

// children resolves every cascade relation of n for mode.
func (en *Engine) children(ctx context.Context, n *entity.Entity, mode Mode) (entity.Collection, error) {
	scope := entity.ScopeDefault
	switch actionFor(n, mode) {
	case actionForceDelete:
		scope = entity.ScopeWithTrashed
	case actionRestore:
		scope = entity.ScopeOnlyTrashed
	}

	var out entity.Collection
	for _, name := range n.Schema().Cascades {
		n.Schema().MustRelation(name)

		related, err := en.graph.Related(ctx, n, name, scope)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal,
				fmt.Sprintf("cascade %s: resolve %s.%s of %s", mode, n.Schema().Name, name, n.ID()))
		}
		if related.IsNone() {
			continue
		}
		for _, c := range related.Entities() {
			if c == nil {
				continue
			}
			if mode == ModeRestore && !c.Schema().SoftDeletes {
				continue
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (en *Engine) mutate(ctx context.Context, n *entity.Entity, a action) error {
	_, err := en.apply(ctx, n, a)
	return err
}

func (en *Engine) apply(ctx context.Context, n *entity.Entity, a action) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch a {
	case actionForceDelete:
		ok, err = en.mutator.ForceDelete(ctx, n)
	case actionRestore:
		ok, err = en.mutator.Restore(ctx, n)
	default:
		ok, err = en.mutator.Delete(ctx, n)
	}
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal,
			fmt.Sprintf("cascade %s %s %s", a, n.Schema().Name, n.ID()))
	}
	if !ok {
		en.logger.DebugContext(ctx, "cascade step halted",
			"schema", n.Schema().Name, "id", n.ID(), "action", a.String())
	}
	return ok, nil
}

func visitKey(e *entity.Entity) string {
	return e.Schema().Name + "\x1f" + e.ID()
}
