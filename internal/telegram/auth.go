package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tdauth "github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/mvolodin/teleterm/internal/auth"
)

// authBackend implements auth.Backend on top of gotd's auth client.
// Calls block until the connection is ready, so steps issued right after
// startup still succeed.
type authBackend struct {
	c *GotdClient

	mu       sync.Mutex
	codeHash string
}

func (b *authBackend) waitReady(ctx context.Context) error {
	select {
	case <-b.c.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *authBackend) SendCode(ctx context.Context, phone string) error {
	if err := b.waitReady(ctx); err != nil {
		return err
	}

	sent, err := b.c.client.Auth().SendCode(ctx, phone, tdauth.SendCodeOptions{})
	if err != nil {
		return mapAuthErr("send code", err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return fmt.Errorf("send code: unexpected response %T", sent)
	}
	b.mu.Lock()
	b.codeHash = code.PhoneCodeHash
	b.mu.Unlock()
	return nil
}

func (b *authBackend) SignIn(ctx context.Context, phone, code string) error {
	if err := b.waitReady(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	hash := b.codeHash
	b.mu.Unlock()

	_, err := b.c.client.Auth().SignIn(ctx, phone, code, hash)
	if err == nil {
		return nil
	}

	if errors.Is(err, tdauth.ErrPasswordAuthNeeded) {
		hint := ""
		if pw, pwErr := b.c.api.AccountGetPassword(ctx); pwErr == nil {
			hint = pw.Hint
		}
		return &auth.PasswordRequiredError{Hint: hint}
	}
	if tgerr.Is(err, "PHONE_CODE_INVALID") || tgerr.Is(err, "PHONE_CODE_EXPIRED") {
		return fmt.Errorf("%w: %v", auth.ErrCodeRejected, err)
	}
	return mapAuthErr("sign in", err)
}

func (b *authBackend) CheckPassword(ctx context.Context, password string) error {
	if err := b.waitReady(ctx); err != nil {
		return err
	}

	_, err := b.c.client.Auth().Password(ctx, password)
	if err == nil {
		return nil
	}
	if tgerr.Is(err, "PASSWORD_HASH_INVALID") {
		return fmt.Errorf("%w: %v", auth.ErrPasswordRejected, err)
	}
	return mapAuthErr("check password", err)
}

func (b *authBackend) SessionValid(ctx context.Context) (bool, error) {
	if err := b.waitReady(ctx); err != nil {
		return false, err
	}

	status, err := b.c.client.Auth().Status(ctx)
	if err != nil {
		return false, fmt.Errorf("auth status: %w", err)
	}
	return status.Authorized, nil
}

func mapAuthErr(op string, err error) error {
	if tgerr.Is(err, "FLOOD_WAIT") {
		return fmt.Errorf("%w: %v", auth.ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
