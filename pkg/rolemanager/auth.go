package rolemanager

import (
	"context"

	"github.com/nsrbac/rolemanager/pkg/password"
)

// AuthFacade implements the engine's authentication boundary: it loads a
// user by login and checks the supplied password via whatever
// password.Verifier the Facade was built with, never distinguishing "no
// such user" from "wrong password" in its return value.
type AuthFacade struct {
	f        *Facade
	verifier password.Verifier
}

// Authenticate loads the user by login, verifies password against the
// stored hash, and returns the non-secret subset of the user record on
// success. Any failure - unknown login, mismatch, or a malformed stored
// hash - returns ErrNotAuthenticated. Infrastructure errors from the store
// still surface, since those are not a credential judgment.
func (a *AuthFacade) Authenticate(ctx context.Context, login, plaintext string) (*AuthenticatedUser, error) {
	user, err := a.f.store.GetUserByLogin(ctx, login)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}

	ok, err := a.verifier.Verify(plaintext, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrNotAuthenticated
	}

	return &AuthenticatedUser{
		ID:        user.ID,
		Login:     user.Login,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}

// SetPassword hashes plaintext with the facade's verifier and updates the
// user's stored hash. This is the counterpart CRUD callers use to set or
// change a password; it never returns the hash itself.
func (a *AuthFacade) SetPassword(ctx context.Context, userID int64, plaintext string) error {
	user, err := a.f.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := a.verifier.Hash(plaintext)
	if err != nil {
		return &InfrastructureError{Op: "SetPassword", Err: err}
	}
	user.PasswordHash = hash
	return a.f.store.UpdateUser(ctx, user)
}
