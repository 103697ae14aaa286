package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mvolodin/teleterm/internal/auth"
)

// fakeBackend scripts each step's outcome.
type fakeBackend struct {
	sendCodeErr      error
	signInErr        error
	checkPasswordErr error
	sessionValid     bool
	sessionErr       error
}

func (f *fakeBackend) SendCode(context.Context, string) error      { return f.sendCodeErr }
func (f *fakeBackend) SignIn(context.Context, string, string) error { return f.signInErr }
func (f *fakeBackend) CheckPassword(context.Context, string) error {
	return f.checkPasswordErr
}
func (f *fakeBackend) SessionValid(context.Context) (bool, error) {
	return f.sessionValid, f.sessionErr
}

func run(t *testing.T, m *auth.Machine, step auth.Step) {
	t.Helper()
	if !m.Apply(step(context.Background())) {
		t.Fatal("Apply discarded a live result")
	}
}

func TestSubmitCode_FromUnauthenticated_InvalidState(t *testing.T) {
	m := auth.NewMachine(&fakeBackend{})

	_, err := m.SubmitCode("12345")
	if !errors.Is(err, auth.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if m.State().Kind != auth.Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", m.State().Kind)
	}
	if m.Pending() {
		t.Error("failed submit left a step pending")
	}
}

func TestHappyPath_PhoneCodeAuthenticated(t *testing.T) {
	m := auth.NewMachine(&fakeBackend{})

	step, err := m.SubmitPhone("+15550100")
	if err != nil {
		t.Fatalf("SubmitPhone: %v", err)
	}
	if !m.Pending() {
		t.Error("no pending step after SubmitPhone")
	}
	run(t, m, step)
	if got := m.State(); got.Kind != auth.AwaitingCode || got.Phone != "+15550100" {
		t.Fatalf("state = %+v, want AwaitingCode{+15550100}", got)
	}

	step, err = m.SubmitCode("12345")
	if err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	run(t, m, step)
	if m.State().Kind != auth.Authenticated {
		t.Errorf("state = %v, want Authenticated", m.State().Kind)
	}
}

func TestTwoFactorPath(t *testing.T) {
	backend := &fakeBackend{signInErr: &auth.PasswordRequiredError{Hint: "pet name"}}
	m := auth.NewMachine(backend)

	step, _ := m.SubmitPhone("+1555")
	run(t, m, step)
	step, _ = m.SubmitCode("11111")
	run(t, m, step)

	got := m.State()
	if got.Kind != auth.AwaitingPassword || got.Hint != "pet name" {
		t.Fatalf("state = %+v, want AwaitingPassword with hint", got)
	}

	step, err := m.SubmitPassword("hunter2")
	if err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	run(t, m, step)
	if m.State().Kind != auth.Authenticated {
		t.Errorf("state = %v, want Authenticated", m.State().Kind)
	}
}

func TestRejectedCode_FailsThenRestartsViaPhone(t *testing.T) {
	backend := &fakeBackend{signInErr: auth.ErrCodeRejected}
	m := auth.NewMachine(backend)

	step, _ := m.SubmitPhone("+1555")
	run(t, m, step)
	step, _ = m.SubmitCode("000000")
	run(t, m, step)

	got := m.State()
	if got.Kind != auth.Failed || got.Reason != auth.FailInvalidCode {
		t.Fatalf("state = %+v, want Failed{InvalidCode}", got)
	}

	// From Failed, SubmitCode is not legal again.
	if _, err := m.SubmitCode("000000"); !errors.Is(err, auth.ErrInvalidState) {
		t.Fatalf("SubmitCode from Failed: err = %v, want ErrInvalidState", err)
	}

	// SubmitPhone restarts the flow.
	backend.signInErr = nil
	step, err := m.SubmitPhone("+1555")
	if err != nil {
		t.Fatalf("SubmitPhone from Failed: %v", err)
	}
	run(t, m, step)
	if m.State().Kind != auth.AwaitingCode {
		t.Errorf("state = %v, want AwaitingCode", m.State().Kind)
	}
}

func TestInvalidPassword_Fails(t *testing.T) {
	backend := &fakeBackend{signInErr: &auth.PasswordRequiredError{}}
	m := auth.NewMachine(backend)

	step, _ := m.SubmitPhone("+1555")
	run(t, m, step)
	step, _ = m.SubmitCode("11111")
	run(t, m, step)

	backend.checkPasswordErr = auth.ErrPasswordRejected
	step, _ = m.SubmitPassword("wrong")
	run(t, m, step)

	got := m.State()
	if got.Kind != auth.Failed || got.Reason != auth.FailInvalidPassword {
		t.Errorf("state = %+v, want Failed{InvalidPassword}", got)
	}
}

func TestRateLimited_MapsToFailReason(t *testing.T) {
	backend := &fakeBackend{sendCodeErr: auth.ErrRateLimited}
	m := auth.NewMachine(backend)

	step, _ := m.SubmitPhone("+1555")
	run(t, m, step)

	got := m.State()
	if got.Kind != auth.Failed || got.Reason != auth.FailRateLimited {
		t.Errorf("state = %+v, want Failed{RateLimited}", got)
	}
}

func TestPendingStep_RefusesFurtherInput(t *testing.T) {
	m := auth.NewMachine(&fakeBackend{})

	step, _ := m.SubmitPhone("+1555")
	if _, err := m.SubmitPhone("+1556"); !errors.Is(err, auth.ErrStepOutstanding) {
		t.Fatalf("second SubmitPhone: err = %v, want ErrStepOutstanding", err)
	}
	run(t, m, step)
}

func TestCancel_DiscardsStaleResult(t *testing.T) {
	m := auth.NewMachine(&fakeBackend{})

	step, _ := m.SubmitPhone("+1555")
	m.Cancel()

	if m.Apply(step(context.Background())) {
		t.Error("Apply accepted a cancelled step's result")
	}
	if m.State().Kind != auth.Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", m.State().Kind)
	}

	// A fresh step after Cancel works normally.
	step, err := m.SubmitPhone("+1556")
	if err != nil {
		t.Fatalf("SubmitPhone after Cancel: %v", err)
	}
	run(t, m, step)
	if m.State().Kind != auth.AwaitingCode {
		t.Errorf("state = %v, want AwaitingCode", m.State().Kind)
	}
}

func TestRestore_LiveSession(t *testing.T) {
	m := auth.NewMachine(&fakeBackend{sessionValid: true})

	step, err := m.Restore()
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	run(t, m, step)
	if m.State().Kind != auth.Authenticated {
		t.Errorf("state = %v, want Authenticated", m.State().Kind)
	}
}

func TestRestore_DeadSession_FallsBack(t *testing.T) {
	m := auth.NewMachine(&fakeBackend{sessionValid: false, sessionErr: errors.New("timeout")})

	step, _ := m.Restore()
	run(t, m, step)
	if m.State().Kind != auth.Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", m.State().Kind)
	}
}

func TestReset_ReturnsToUnauthenticated(t *testing.T) {
	m := auth.NewMachine(&fakeBackend{})
	step, _ := m.SubmitPhone("+1555")
	run(t, m, step)

	m.Reset()
	if m.State().Kind != auth.Unauthenticated {
		t.Errorf("state = %v, want Unauthenticated", m.State().Kind)
	}
}
