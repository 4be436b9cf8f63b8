package domain

import "time"

// Session is the locally stored authentication state of one client profile.
type Session struct {
	Profile   string    `json:"profile"`
	Token     string    `json:"token,omitempty"`
	User      *User     `json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the token expiry has passed. A zero ExpiresAt
// means the expiry is unknown and the token is kept.
func (s *Session) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}

func (s *Session) IsAuthenticated() bool {
	return s != nil && s.Token != "" && s.User != nil
}

// AccessToken is the payload returned by the dispatch endpoints.
type AccessToken struct {
	AccessToken  string `json:"access_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
