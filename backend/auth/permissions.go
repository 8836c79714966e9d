package auth

import (
	"fmt"
	"net/http"

	"formsite/backend/schema"

	"github.com/google/uuid"
)

// Resource is the view of a row the access policy needs: who owns it, which
// tenant it belongs to, and whether it is shared with that whole tenant.
type Resource interface {
	OwnerIds() []uuid.UUID
	TenantId() uuid.UUID
	SharedInTenant() bool
}

// CanAccess is a pure predicate, callers translate a denial into a 403.
// Rules are checked in order:
//  1. admins can access everything
//  2. subadmins can access everything in their own subsite
//  3. owners (sender/receiver/creator) can access their own resources
//  4. tenant-shared resources are accessible to members of the same subsite
func CanAccess(actor schema.User, resource Resource) bool {
	if actor.IsAdmin() {
		return true
	}

	if actor.IsSubadmin() && actor.SameSubsite(resource.TenantId()) {
		return true
	}

	for _, owner := range resource.OwnerIds() {
		if owner == actor.Id {
			return true
		}
	}

	if resource.SharedInTenant() && actor.SameSubsite(resource.TenantId()) {
		return true
	}

	return false
}

func AdminOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin() {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func AdminOrSubadminOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsAdmin() && !user.IsSubadmin() {
				http.Error(w, "user must be admin or subadmin to access endpoint", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
