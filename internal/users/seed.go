package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/senocak/authcore/internal/auth"
)

// SeedUser describes one account created on an empty database.
type SeedUser struct {
	Name     string
	LastName string
	Email    string
	Password string
	Roles    []string
}

// DefaultSeed is the development data set.
var DefaultSeed = []SeedUser{
	{Name: "anil1", LastName: "Senocak1", Email: "anil1@senocak.com", Password: "asenocak", Roles: []string{RoleAdmin, RoleUser}},
	{Name: "anil2", LastName: "Senocak2", Email: "anil2@gmail.com", Password: "asenocak", Roles: []string{RoleUser}},
}

// Seed creates the built-in roles and every seed user that does not exist yet.
// It returns the number of users created.
func (d *Directory) Seed(ctx context.Context, hasher auth.PasswordHasher, seed []SeedUser) (int, error) {
	roles, err := d.EnsureRoles(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, s := range seed {
		exists, err := d.ExistsByEmail(ctx, s.Email)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		hash, err := hasher.Hash(s.Password)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", s.Email, err)
		}
		u := &User{Name: s.Name, LastName: s.LastName, Email: s.Email, PasswordHash: hash}
		for _, name := range s.Roles {
			role, ok := roles[name]
			if !ok {
				return created, fmt.Errorf("seed %s: %w", s.Email, ErrRoleNotFound)
			}
			u.Roles = append(u.Roles, role)
		}
		if _, err := d.Save(ctx, u); err != nil {
			if errors.Is(err, ErrEmailTaken) {
				continue
			}
			return created, err
		}
		created++
		d.logger.InfoContext(ctx, "seed user created", "email", s.Email)
	}
	return created, nil
}
