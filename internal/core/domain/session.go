package domain

// Session identifies the visitor whose cart and checkout data an operation
// works on. Carts are never shared across sessions.
type Session struct {
	VisitorID string
}

func (s Session) Valid() bool {
	return s.VisitorID != ""
}
