// Package authz holds the ownership and visibility rules shared by
// every mod-facing endpoint.
package authz

// Visibility values stored on mod records
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
)

// Requester is the authenticated identity attached to a request.
// A nil *Requester means the request is anonymous.
type Requester struct {
	CustomerID string
	Email      string
	IsAdmin    bool
}

// CanModify reports whether the requester may mutate a resource owned
// by ownerID. Admins may modify anything; everyone else only their
// own resources.
func CanModify(ownerID string, r *Requester) bool {
	if r == nil {
		return false
	}
	if r.IsAdmin {
		return true
	}
	return r.CustomerID != "" && r.CustomerID == ownerID
}

// CanView reports whether the requester may read a resource with the
// given visibility. Public and unlisted resources are readable by
// anyone including anonymous requesters; private resources only by
// their owner or an admin.
func CanView(visibility, ownerID string, r *Requester) bool {
	if visibility == VisibilityPrivate {
		return CanModify(ownerID, r)
	}
	// public, unlisted, and older records without a stored
	// visibility are readable by anyone
	return true
}
