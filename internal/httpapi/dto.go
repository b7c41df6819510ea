package httpapi

import "github.com/senocak/authcore/internal/users"

type loginRequest struct {
	Email    string `json:"email" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=20"`
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=4,max=40"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=20"`
}

type updateUserRequest struct {
	Name                 string `json:"name" validate:"omitempty,min=4,max=40"`
	Password             string `json:"password" validate:"omitempty,min=6,max=20"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// UserResponse is the public view of a user; it never carries the hash.
type UserResponse struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

type userWrapperResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// PaginationResponse wraps one page of a listing. Page is one based.
type PaginationResponse[T any] struct {
	Page   int    `json:"page"`
	Pages  int    `json:"pages"`
	Total  int64  `json:"total"`
	Sort   string `json:"sort"`
	SortBy string `json:"sortBy"`
	Items  []T    `json:"items"`
}

func toUserResponse(u users.User) UserResponse {
	return UserResponse{Name: u.Name, Email: u.Email, Roles: u.RoleNames()}
}
