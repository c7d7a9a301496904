package httpx

import "net/http"

// whoamiHandler reports the admin identity; mounted behind RequireAdmin.
func whoamiHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUserFromContext(r.Context())
	if user == nil {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"id":           user.ID,
		"display_name": user.DisplayName,
		"is_admin":     IsAdminFromContext(r.Context()),
	})
}
