package users

import (
	"strings"
	"time"
)

// Stored role names. They already carry the authority prefix.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// Role is one grantable role record.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is the persisted account. The JSON form is the cache encoding and
// includes the password hash; HTTP responses use their own DTO.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastName     string    `json:"lastName,omitempty"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RoleNames returns role names in stored order.
func (u User) RoleNames() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, r.Name)
	}
	return out
}

// HasRole reports whether the user holds the named role.
func (u User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

// Operator combines role filters in ListQuery.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// ParseOperator defaults to AND for anything but "or".
func ParseOperator(s string) Operator {
	if strings.EqualFold(strings.TrimSpace(s), string(OperatorOr)) {
		return OperatorOr
	}
	return OperatorAnd
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListQuery filters a user listing. Page is zero based.
type ListQuery struct {
	Page     int
	Size     int
	Query    string
	RoleIDs  []string
	Operator Operator
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}
	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}
	if q.Operator == "" {
		q.Operator = OperatorAnd
	}
	q.Query = strings.TrimSpace(q.Query)
	return q
}

// Page is one slice of a listing. Number is one based.
type Page struct {
	Items  []User
	Number int
	Pages  int
	Total  int64
}

func newPage(items []User, q ListQuery, total int64) Page {
	pages := int((total + int64(q.Size) - 1) / int64(q.Size))
	return Page{Items: items, Number: q.Page + 1, Pages: pages, Total: total}
}
