package domain

// User is the authenticated account returned by GET /me.
type User struct {
	ID        ID       `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair is what the login and refresh endpoints return.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
