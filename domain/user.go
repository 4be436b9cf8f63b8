package domain

import "time"

// User represents the account that is logged in on this client.
type User struct {
	ID        string    `json:"id,omitempty"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (u *User) HasEmail() bool {
	return u != nil && u.Email != ""
}

// UserList is a page of users as returned by the list endpoint.
type UserList struct {
	Users []User `json:"data"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int    `json:"total"`
}
