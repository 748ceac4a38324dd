package ucenter

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing. Tx is
// the transaction the status change runs in, hooks that touch the store
// should use it.
type TransitionContext struct {
	Actor   ActorRef
	Account *Account
	From    AccountStatus
	To      AccountStatus
	Meta    TransitionMetadata
	Tx      bun.IDB
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// AccountStatusStore reads and persists account statuses inside a transaction.
type AccountStatusStore interface {
	GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id int64, status AccountStatus) (*Account, error)
}

// TxRunner runs f inside a transaction. RepositoryManager implements it.
type TxRunner interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// AccountStateMachine moves accounts between statuses. Status changes are
// always administrator driven.
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error)
	CanTransition(from, to AccountStatus) bool
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
// By default the hook error is returned as is.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *accountStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithStateMachineTransitions replaces the transition graph. Statuses
// missing from the map cannot be left.
func WithStateMachineTransitions(graph map[AccountStatus][]AccountStatus) StateMachineOption {
	return func(sm *accountStateMachine) {
		if graph == nil {
			return
		}
		sm.transitions = make(map[AccountStatus]map[AccountStatus]struct{}, len(graph))
		for from, targets := range graph {
			allowed := make(map[AccountStatus]struct{}, len(targets))
			for _, to := range targets {
				allowed[to] = struct{}{}
			}
			sm.transitions[from] = allowed
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// DefaultAccountTransitions allows moving between any two distinct statuses.
func DefaultAccountTransitions() map[AccountStatus][]AccountStatus {
	all := []AccountStatus{AccountStatusPending, AccountStatusActive, AccountStatusDisabled, AccountStatusRejected}
	graph := make(map[AccountStatus][]AccountStatus, len(all))
	for _, from := range all {
		for _, to := range all {
			if from != to {
				graph[from] = append(graph[from], to)
			}
		}
	}
	return graph
}

// NewAccountStateMachine returns the default implementation backed by store.
// The status read, the checks, the hooks and the write share one transaction
// from txm.
func NewAccountStateMachine(store AccountStatusStore, txm TxRunner, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		store:        store,
		txm:          txm,
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       nopLogger{},
	}
	WithStateMachineTransitions(DefaultAccountTransitions())(sm)

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	store            AccountStatusStore
	txm              TxRunner
	transitions      map[AccountStatus]map[AccountStatus]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if !target.Valid() {
		return nil, newValidationError("status: must be a known account status").
			WithMetadata(map[string]any{"target": int(target)})
	}

	options := sm.buildTransitionOptions(opts...)

	var (
		current *Account
		ctxData TransitionContext
		applied bool
	)
	err := sm.txm.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		// the caller's copy may be stale, decide on the row as it is now
		current, err = sm.store.GetByIDTx(ctx, tx, account.ID)
		if err != nil {
			if isNotFound(err) {
				return ErrAccountNotFound
			}
			return storeFault(err, "failed to load account status")
		}

		from := current.Status
		if from == target {
			return ErrStatusUnchanged
		}

		if !sm.CanTransition(from, target) {
			sm.logger.Debug("account status transition refused", "uid", current.ID, "from", from.String(), "to", target.String())
			return ErrInvalidTransition
		}

		ctxData = TransitionContext{
			Actor:   actor,
			Account: current,
			From:    from,
			To:      target,
			Meta:    options.cloneMetadata(),
			Tx:      tx,
		}

		if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
			return err
		}

		updated, err := sm.store.UpdateStatusTx(ctx, tx, current.ID, target)
		if err != nil {
			if isNotFound(err) {
				return ErrAccountNotFound
			}
			return storeFault(err, "failed to update account status")
		}

		current.Status = target
		if updated != nil {
			current.UpdatedAt = updated.UpdatedAt
		}

		// after hooks still run inside the transaction, a failure rolls back
		if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		if applied {
			return nil, storeFault(err, "failed to commit account status")
		}
		return nil, err
	}

	*account = *current

	sm.logger.Info("account status changed", "uid", account.ID, "from", ctxData.From.String(), "to", target.String(), "actor", actor.ID)

	activityRecorder{sink: sm.activitySink, now: sm.now, logger: sm.logger}.record(ctx, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		Actor:      actor,
		AccountID:  account.ID,
		FromStatus: ctxData.From,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(ctxData.Meta),
	})

	return account, nil
}

func (sm *accountStateMachine) CanTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *accountStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *accountStateMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	out := map[string]any{}
	for k, v := range meta.Metadata {
		out[k] = v
	}
	if meta.Reason != "" {
		out["reason"] = meta.Reason
	}
	out["changed_at"] = sm.now().UTC()
	return out
}
