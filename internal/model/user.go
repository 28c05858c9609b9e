package model

type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	IsActive bool   `json:"is_active"`
}

type UserCreate struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Password string `json:"password"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Session is the in-memory authentication state. IsAuthenticated is
// true only while CredentialToken is set and the last validation
// against the server accepted it.
type Session struct {
	User            *User
	CredentialToken string
	IsAuthenticated bool
}

// StoredSession is the single durable record kept in session storage,
// read once at startup for session restoration.
type StoredSession struct {
	CredentialToken string `json:"credential_token"`
	IsAuthenticated bool   `json:"is_authenticated"`
	User            *User  `json:"user,omitempty"`
}
