package model

// Identity is the authenticated caller of a request.
type Identity struct {
	ID    string
	Email string
}
