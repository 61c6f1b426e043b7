package auth

import "github.com/taghive/taghive/internal/user"

// Caller identifies who is making a request. The zero value is the
// anonymous caller.
type Caller struct {
	UserID         int64
	UserLevel      string
	CanEditObjects bool
}

// Anonymous is the caller for requests without a valid session.
var Anonymous = Caller{}

// IsAnonymous reports whether the caller has no authenticated identity.
func (c Caller) IsAnonymous() bool { return c.UserID == 0 }

// IsAdmin reports whether the caller has the admin level.
func (c Caller) IsAdmin() bool { return c.UserLevel == user.LevelAdmin }

// CallerFor builds a Caller from an authenticated user.
func CallerFor(u *user.User) Caller {
	return Caller{
		UserID:         u.UserID,
		UserLevel:      u.UserLevel,
		CanEditObjects: u.CanEditObjects,
	}
}
