// Package auth drives the phone -> code -> optional 2FA login flow as an
// explicit state machine. Network I/O happens inside cancellable Steps run
// off the event loop; the machine itself only validates transitions and
// applies results, so the UI never blocks on it.
package auth

import (
	"context"
	"errors"
)

// Kind enumerates the machine's states. Exactly one is active at a time.
type Kind int

const (
	Unauthenticated Kind = iota
	AwaitingCode
	AwaitingPassword
	Authenticated
	Failed
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingCode:
		return "awaiting code"
	case AwaitingPassword:
		return "awaiting password"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// FailReason classifies why the machine entered Failed.
type FailReason int

const (
	FailNone FailReason = iota
	FailInvalidCode
	FailInvalidPassword
	FailRateLimited
	FailNetwork
)

// State is the machine's current position plus its context fields.
type State struct {
	Kind   Kind
	Phone  string
	Hint   string // 2FA password hint, when known
	Reason FailReason
}

// ErrInvalidState is returned when a submit call is not the legal input
// for the current state. No transition occurs.
var ErrInvalidState = errors.New("auth: not valid in current state")

// ErrStepOutstanding is returned while a previous step has not resolved.
var ErrStepOutstanding = errors.New("auth: a step is already in progress")

// Backend errors the machine understands. The protocol adapter maps its
// wire errors onto these via errors.Is/As.
var (
	ErrCodeRejected     = errors.New("auth: code rejected")
	ErrPasswordRejected = errors.New("auth: password rejected")
	ErrRateLimited      = errors.New("auth: rate limited")
)

// PasswordRequiredError signals that sign-in needs the 2FA password.
type PasswordRequiredError struct {
	Hint string
}

func (e *PasswordRequiredError) Error() string { return "auth: 2FA password required" }

// Backend performs the actual protocol calls for each auth step.
type Backend interface {
	SendCode(ctx context.Context, phone string) error
	SignIn(ctx context.Context, phone, code string) error
	CheckPassword(ctx context.Context, password string) error
	// SessionValid reports whether a persisted session is live.
	SessionValid(ctx context.Context) (bool, error)
}

// Result is the outcome of a Step, fed back through Apply.
type Result struct {
	gen  int
	next State
	Err  error // non-nil for transient errors that still transition to Failed
}

// Step is a cancellable network operation produced by a submit call.
type Step func(ctx context.Context) Result

// Machine owns the auth state. It is used only from the event-loop
// goroutine; Steps are the only pieces that run elsewhere.
type Machine struct {
	state   State
	backend Backend
	pending bool
	gen     int
}

func NewMachine(backend Backend) *Machine {
	return &Machine{
		state:   State{Kind: Unauthenticated},
		backend: backend,
	}
}

func (m *Machine) State() State { return m.state }

// Pending reports whether a step is outstanding; the UI shows an
// in-progress indicator and refuses further auth input while true.
func (m *Machine) Pending() bool { return m.pending }

// Restore checks a persisted session at startup. Legal only from
// Unauthenticated; resolves to Authenticated on a live session, back to
// Unauthenticated otherwise.
func (m *Machine) Restore() (Step, error) {
	if err := m.begin(Unauthenticated); err != nil {
		return nil, err
	}
	gen := m.gen
	return func(ctx context.Context) Result {
		ok, err := m.backend.SessionValid(ctx)
		if err != nil || !ok {
			return Result{gen: gen, next: State{Kind: Unauthenticated}, Err: err}
		}
		return Result{gen: gen, next: State{Kind: Authenticated}}
	}, nil
}

// SubmitPhone requests a login code. Legal from Unauthenticated and from
// Failed (retry restarts the flow).
func (m *Machine) SubmitPhone(phone string) (Step, error) {
	if err := m.begin(Unauthenticated, Failed); err != nil {
		return nil, err
	}
	gen := m.gen
	return func(ctx context.Context) Result {
		if err := m.backend.SendCode(ctx, phone); err != nil {
			return Result{gen: gen, next: failState(phone, err), Err: err}
		}
		return Result{gen: gen, next: State{Kind: AwaitingCode, Phone: phone}}
	}, nil
}

// SubmitCode verifies the login code. Legal only from AwaitingCode.
func (m *Machine) SubmitCode(code string) (Step, error) {
	if err := m.begin(AwaitingCode); err != nil {
		return nil, err
	}
	gen := m.gen
	phone := m.state.Phone
	return func(ctx context.Context) Result {
		err := m.backend.SignIn(ctx, phone, code)
		if err == nil {
			return Result{gen: gen, next: State{Kind: Authenticated}}
		}
		var pwErr *PasswordRequiredError
		if errors.As(err, &pwErr) {
			return Result{gen: gen, next: State{Kind: AwaitingPassword, Phone: phone, Hint: pwErr.Hint}}
		}
		return Result{gen: gen, next: failState(phone, err), Err: err}
	}, nil
}

// SubmitPassword verifies the 2FA password. Legal only from AwaitingPassword.
func (m *Machine) SubmitPassword(password string) (Step, error) {
	if err := m.begin(AwaitingPassword); err != nil {
		return nil, err
	}
	gen := m.gen
	phone := m.state.Phone
	return func(ctx context.Context) Result {
		if err := m.backend.CheckPassword(ctx, password); err != nil {
			return Result{gen: gen, next: failState(phone, err), Err: err}
		}
		return Result{gen: gen, next: State{Kind: Authenticated}}
	}, nil
}

// Apply feeds a resolved Result back into the machine. Stale results from
// cancelled or superseded steps are discarded; it reports whether the
// state changed.
func (m *Machine) Apply(r Result) bool {
	if r.gen != m.gen {
		return false
	}
	m.pending = false
	m.state = r.next
	return true
}

// Cancel discards any outstanding step; its eventual Result will be stale.
func (m *Machine) Cancel() {
	if m.pending {
		m.gen++
		m.pending = false
	}
}

// Reset drops back to Unauthenticated, as on auth invalidation or logout.
func (m *Machine) Reset() {
	m.gen++
	m.pending = false
	m.state = State{Kind: Unauthenticated}
}

func (m *Machine) begin(legal ...Kind) error {
	if m.pending {
		return ErrStepOutstanding
	}
	for _, k := range legal {
		if m.state.Kind == k {
			m.pending = true
			m.gen++
			return nil
		}
	}
	return ErrInvalidState
}

func failState(phone string, err error) State {
	reason := FailNetwork
	switch {
	case errors.Is(err, ErrCodeRejected):
		reason = FailInvalidCode
	case errors.Is(err, ErrPasswordRejected):
		reason = FailInvalidPassword
	case errors.Is(err, ErrRateLimited):
		reason = FailRateLimited
	}
	return State{Kind: Failed, Phone: phone, Reason: reason}
}
