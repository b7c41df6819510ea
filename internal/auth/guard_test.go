package auth

import (
	"context"
	"errors"
	"testing"
)

var errAccountMissing = errors.New("user_not_found")

type fakeAccounts struct {
	accounts map[string]Account
	FindErr  error
	calls    int
}

func (f *fakeAccounts) FindAccount(_ context.Context, email string) (Account, error) {
	f.calls++
	if f.FindErr != nil {
		return Account{}, f.FindErr
	}
	a, ok := f.accounts[email]
	if !ok {
		return Account{}, errAccountMissing
	}
	return a, nil
}

// plainHasher keeps tests fast; bcrypt is exercised separately.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "plain:" + p, nil }
func (plainHasher) Verify(hash, p string) error {
	if hash != "plain:"+p {
		return errors.New("mismatch")
	}
	return nil
}

func newTestGuard() (*Guard, *fakeAccounts) {
	accounts := &fakeAccounts{accounts: map[string]Account{
		"anil1@senocak.com": {ID: "u-1", Name: "anil1", Email: "anil1@senocak.com", PasswordHash: "plain:asenocak", Roles: []string{"ROLE_ADMIN", "ROLE_USER"}},
		"anil2@gmail.com":   {ID: "u-2", Name: "anil2", Email: "anil2@gmail.com", PasswordHash: "plain:asenocak", Roles: []string{"ROLE_USER"}},
	}}
	return NewGuard(accounts, plainHasher{}), accounts
}

func TestAuthenticateGrantsAuthorities(t *testing.T) {
	guard, _ := newTestGuard()
	password := "asenocak"

	ctx, principal, err := guard.Authenticate(context.Background(), "anil1@senocak.com", &password)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !principal.HasAuthority("ROLE_USER") || !principal.HasAuthority("ROLE_ADMIN") {
		t.Fatalf("expected USER and ADMIN authorities, got %v", principal.Authorities)
	}
	got, ok := PrincipalFromContext(ctx)
	if !ok || got.Subject != "anil1@senocak.com" {
		t.Fatalf("principal not installed into context: %+v ok=%v", got, ok)
	}

	_, principal, err = guard.Authenticate(context.Background(), "anil2@gmail.com", &password)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.HasAuthority("ROLE_ADMIN") {
		t.Fatalf("plain user must not receive ADMIN: %v", principal.Authorities)
	}
	if !principal.HasAuthority("ROLE_USER") {
		t.Fatalf("USER authority is always granted: %v", principal.Authorities)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	guard, _ := newTestGuard()
	wrong := "nope-nope"

	ctx := context.Background()
	gotCtx, _, err := guard.Authenticate(ctx, "anil2@gmail.com", &wrong)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, ok := PrincipalFromContext(gotCtx); ok {
		t.Fatalf("failed authentication must not install a principal")
	}
}

func TestAuthenticateWithoutCredentialSkipsPasswordCheck(t *testing.T) {
	guard, _ := newTestGuard()
	if _, _, err := guard.Authenticate(context.Background(), "anil2@gmail.com", nil); err != nil {
		t.Fatalf("Authenticate without credential: %v", err)
	}
}

func TestAuthenticatePropagatesLookupErrors(t *testing.T) {
	guard, accounts := newTestGuard()
	pw := "asenocak"

	if _, _, err := guard.Authenticate(context.Background(), "ghost@example.com", &pw); !errors.Is(err, errAccountMissing) {
		t.Fatalf("expected lookup error to propagate, got %v", err)
	}

	accounts.FindErr = errors.New("db down")
	if _, _, err := guard.Authenticate(context.Background(), "anil1@senocak.com", &pw); err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.Hash("asenocak")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Verify(hash, "asenocak"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := h.Verify(hash, "other"); err == nil {
		t.Fatal("expected mismatch")
	}
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected empty password error")
	}
}
