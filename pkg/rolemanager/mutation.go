package rolemanager

import "context"

// structuralWrite runs fn, and on success bumps permissions_version so every
// cache entry computed before this call is recognized as stale on its next
// read. AddSubgroup and RemoveSubgroup bump the counter inside their own
// transaction instead (AddSubgroup also holds the advisory lock there); every other
// structural mutation (role/right attachment, assignments, membership) goes
// through this helper.
func structuralWrite(ctx context.Context, store Store, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	_, err := store.BumpPermissionsVersion(ctx)
	return err
}
