package authz

import (
	"context"
	"net/http"
)

type contextKey string

const orgIDKey contextKey = "org_id"

// WithOrgID stores the authenticated org on the context.
func WithOrgID(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// OrgIDFromRequest returns the org the request is scoped to.
func OrgIDFromRequest(r *http.Request) (int64, bool) {
	orgID, ok := r.Context().Value(orgIDKey).(int64)
	if !ok || orgID == 0 {
		return 0, false
	}
	return orgID, true
}
