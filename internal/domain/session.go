package domain

// Session is the process-wide authentication state.
//
//	absent -> pending -> authenticated (User set)
//	                  -> unauthenticated (LastError set)
//
// An empty LastError means no error is recorded.
type Session struct {
	User          *User  `json:"user,omitempty"`
	Authenticated bool   `json:"authenticated"`
	Pending       bool   `json:"pending"`
	LastError     string `json:"last_error,omitempty"`
}

// Clone returns a copy that does not alias the stored User.
func (s Session) Clone() Session {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}
