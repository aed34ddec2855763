package auth

// IsAdmin reports whether caller holds the admin role. A nil caller is never admin.
func IsAdmin(caller *Account) bool {
	return caller != nil && caller.Role == RoleAdmin
}

// IsAdminOrOwner reports whether caller may act on a resource owned by ownerID.
func IsAdminOrOwner(caller *Account, ownerID string) bool {
	if caller == nil {
		return false
	}
	return caller.Role == RoleAdmin || (ownerID != "" && caller.ID == ownerID)
}

// RequireAdmin returns ErrUnauthenticated for a nil caller and ErrForbidden
// for a non-admin one.
func RequireAdmin(caller *Account) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !IsAdmin(caller) {
		return ErrForbidden
	}
	return nil
}

// RequireAdminOrOwner is the error-returning form of IsAdminOrOwner.
func RequireAdminOrOwner(caller *Account, ownerID string) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !IsAdminOrOwner(caller, ownerID) {
		return ErrForbidden
	}
	return nil
}
