package auth

import (
	"context"
	"errors"
	"testing"
)

func TestCheckAuthorized(t *testing.T) {
	user := Principal{Subject: "anil2@gmail.com", Authorities: []string{"ROLE_USER"}}
	admin := Principal{Subject: "anil1@senocak.com", Authorities: []string{"ROLE_USER", "ROLE_ADMIN"}}

	cases := []struct {
		name      string
		principal *Principal
		roles     []string
		wantErr   bool
	}{
		{name: "user on admin route", principal: &user, roles: []string{RoleAdmin}, wantErr: true},
		{name: "admin on admin route", principal: &admin, roles: []string{RoleAdmin}},
		{name: "user on default roles", principal: &user},
		{name: "anonymous on default roles", wantErr: true},
		{name: "prefixed requirement", principal: &admin, roles: []string{"ROLE_ADMIN"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.principal != nil {
				ctx = ContextWithPrincipal(ctx, *tc.principal)
			}
			err := CheckAuthorized(ctx, tc.roles...)
			if tc.wantErr && !errors.Is(err, ErrAccessDenied) {
				t.Fatalf("expected ErrAccessDenied, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAuthority(t *testing.T) {
	cases := map[string]string{
		"ADMIN":      "ROLE_ADMIN",
		"user":       "ROLE_USER",
		"ROLE_ADMIN": "ROLE_ADMIN",
		" ":          "",
	}
	for in, want := range cases {
		if got := Authority(in); got != want {
			t.Fatalf("Authority(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestContextCarriesToken(t *testing.T) {
	ctx := WithAuthentication(context.Background(), Principal{Subject: "a@b.com"}, "tok")
	if tok, ok := TokenFromContext(ctx); !ok || tok != "tok" {
		t.Fatalf("unexpected token %q ok=%v", tok, ok)
	}
	if _, ok := TokenFromContext(context.Background()); ok {
		t.Fatal("expected no token on empty context")
	}
}
