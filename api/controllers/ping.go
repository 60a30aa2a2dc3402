package controllers

import (
	"net/http"

	"github.com/angelmondragon/starter-billing/api/middleware"
	"github.com/angelmondragon/starter-billing/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

// AppPing is the sample feature route behind the entitlement gate.
func AppPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "app", "status": "ok"}
		if org := middleware.OrganizationIDFromContext(r.Context()); org != "" {
			payload["organization_id"] = org
		}
		responses.WriteSuccess(w, payload)
	}
}
