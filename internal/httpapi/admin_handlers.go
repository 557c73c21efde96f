package httpapi

import (
	"net/http"
	"time"

	"peopleops.org/internal/auth"
)

type createUserRequest struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles"`
}

type assignRoleRequest struct {
	RoleID    string     `json:"role_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// handleCreateUser provisions an account on someone's behalf. Unlike
// self-registration it returns no tokens; the new user logs in themselves.
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOr401(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	actor := session.UserID()
	view, err := a.svc.CreateUser(r.Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Roles:     req.Roles,
		Meta:      requestMeta(r),
	}, &actor)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.CurrentUser(r.Context(), r.PathValue("id"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}

	actor := session.UserID()
	err := a.svc.AssignRole(r.Context(), r.PathValue("id"), req.RoleID, req.ExpiresAt, &actor, requestMeta(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "role assigned"})
}

func (a *API) handleUnassignRole(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionOr401(w, r)
	if !ok {
		return
	}

	actor := session.UserID()
	err := a.svc.UnassignRole(r.Context(), r.PathValue("id"), r.PathValue("role_id"), &actor, requestMeta(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "role removed"})
}

func (a *API) handleLoginHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPage(r)
	entries, err := a.recorder.LoginLogsForUser(r.Context(), r.PathValue("user_id"), limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": loginLogViews(entries)})
}

func (a *API) handleRecordHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPage(r)
	entries, err := a.recorder.ChangesForRecord(r.Context(), r.PathValue("table"), r.PathValue("record_id"), limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": auditLogViews(entries)})
}

func (a *API) handleTableHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPage(r)
	entries, err := a.recorder.ChangesForTable(r.Context(), r.PathValue("table"), limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": auditLogViews(entries)})
}

func (a *API) handleActorHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := queryPage(r)
	entries, err := a.recorder.ChangesForUser(r.Context(), r.PathValue("user_id"), limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": auditLogViews(entries)})
}

type loginLogView struct {
	ID            string    `json:"id"`
	UserID        *string   `json:"user_id,omitempty"`
	Username      string    `json:"username"`
	IPAddress     *string   `json:"ip_address,omitempty"`
	UserAgent     *string   `json:"user_agent,omitempty"`
	Successful    bool      `json:"successful"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	LoginTime     time.Time `json:"login_time"`
}

type auditLogView struct {
	ID        string         `json:"id"`
	TableName string         `json:"table_name"`
	RecordID  string         `json:"record_id"`
	Action    string         `json:"action"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	ChangedBy *string        `json:"changed_by,omitempty"`
	IPAddress *string        `json:"ip_address,omitempty"`
	UserAgent *string        `json:"user_agent,omitempty"`
	ChangedAt time.Time      `json:"changed_at"`
}

func loginLogViews(entries []auth.LoginLog) []loginLogView {
	views := make([]loginLogView, 0, len(entries))
	for _, e := range entries {
		views = append(views, loginLogView{
			ID:            e.ID,
			UserID:        e.UserID,
			Username:      e.Username,
			IPAddress:     e.IPAddress,
			UserAgent:     e.UserAgent,
			Successful:    e.Successful,
			FailureReason: e.FailureReason,
			LoginTime:     e.LoginTime,
		})
	}
	return views
}

func auditLogViews(entries []auth.AuditLog) []auditLogView {
	views := make([]auditLogView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditLogView{
			ID:        e.ID,
			TableName: e.TableName,
			RecordID:  e.RecordID,
			Action:    e.Action,
			OldValues: e.OldValues,
			NewValues: e.NewValues,
			ChangedBy: e.ChangedBy,
			IPAddress: e.IPAddress,
			UserAgent: e.UserAgent,
			ChangedAt: e.ChangedAt,
		})
	}
	return views
}
