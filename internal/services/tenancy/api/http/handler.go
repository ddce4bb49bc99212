// Package httpapi exposes the tenancy workflows over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/agencyhub/internal/platform/errors"
	"github.com/louisbranch/agencyhub/internal/platform/requestctx"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/domain"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

const maxBodyBytes = 1 << 20

// Service is the workflow surface the handlers call.
type Service interface {
	ResolveOrAccept(ctx context.Context) (domain.Resolution, error)
	UserDetails(ctx context.Context) (domain.UserDetails, error)
	RecordActivity(ctx context.Context, input domain.ActivityInput) (domain.ActivityResult, error)
	ListAgencyNotifications(ctx context.Context, agencyID string, limit int) ([]tenant.FeedEntry, error)
	SendInvitation(ctx context.Context, input domain.SendInvitationInput) (tenant.Invitation, error)
	ReconcileRole(ctx context.Context, email string) (tenant.User, error)
	CreateAgency(ctx context.Context, input domain.CreateAgencyInput) (tenant.Agency, error)
	UpdateAgency(ctx context.Context, input domain.UpdateAgencyInput) (tenant.Agency, error)
	DeleteAgency(ctx context.Context, agencyID string) error
	UpsertSubAccount(ctx context.Context, input domain.SubAccountInput) (tenant.SubAccount, error)
}

// Handler serves the tenancy HTTP API.
type Handler struct {
	service       Service
	authenticator identity.Authenticator
	logger        *zap.Logger
}

// NewHandler builds the API handler. A nil logger discards logs.
func NewHandler(service Service, authenticator identity.Authenticator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, authenticator: authenticator, logger: logger}
}

// Routes returns the API mux wrapped in the standard middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	authed := func(fn http.HandlerFunc) http.Handler {
		return Chain(fn, RequireIdentity())
	}
	mux.Handle("GET /v1/landing", authed(h.handleLanding))
	mux.Handle("GET /v1/me", authed(h.handleMe))
	mux.Handle("POST /v1/activity", http.HandlerFunc(h.handleRecordActivity))
	mux.Handle("POST /v1/agencies", authed(h.handleCreateAgency))
	mux.Handle("PATCH /v1/agencies/{agencyID}", authed(h.handleUpdateAgency))
	mux.Handle("DELETE /v1/agencies/{agencyID}", authed(h.handleDeleteAgency))
	mux.Handle("POST /v1/agencies/{agencyID}/sub-accounts", authed(h.handleSaveSubAccount))
	mux.Handle("PUT /v1/agencies/{agencyID}/sub-accounts/{subAccountID}", authed(h.handleSaveSubAccount))
	mux.Handle("GET /v1/agencies/{agencyID}/notifications", authed(h.handleListNotifications))
	mux.Handle("POST /v1/agencies/{agencyID}/invitations", authed(h.handleSendInvitation))
	mux.Handle("POST /v1/users/reconcile-role", authed(h.handleReconcileRole))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return Chain(mux,
		RequestID(),
		AccessLog(h.logger),
		RecoverPanic(h.logger),
		Authenticate(h.authenticator, h.logger),
	)
}

type landingResponse struct {
	AgencyID   string `json:"agency_id,omitempty"`
	Outcome    string `json:"outcome"`
	Path       string `json:"path,omitempty"`
	Authorized bool   `json:"authorized"`
}

func (h *Handler) handleLanding(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	resolution, err := h.service.ResolveOrAccept(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	input := LandingQuery(r)
	if resolution.HasAgency() {
		details, err := h.service.UserDetails(ctx)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, r, err)
			return
		}
		input.AgencyID = resolution.AgencyID
		input.Role = details.User.Role
	}
	decision := domain.Landing(input)
	_ = WriteJSON(w, http.StatusOK, landingResponse{
		AgencyID:   resolution.AgencyID,
		Outcome:    string(resolution.Outcome),
		Path:       decision.Path,
		Authorized: decision.Authorized,
	})
}

// LandingQuery reads the plan and OAuth callback parameters of a landing request.
func LandingQuery(r *http.Request) domain.LandingInput {
	query := r.URL.Query()
	return domain.LandingInput{
		Plan:  query.Get("plan"),
		State: query.Get("state"),
		Code:  query.Get("code"),
	}
}

type userJSON struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	AgencyID  string    `json:"agency_id"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toUserJSON(user tenant.User) userJSON {
	return userJSON{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role.String(),
		AgencyID:  user.AgencyID,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type agencyJSON struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CompanyEmail string `json:"company_email"`
	LogoURL      string `json:"logo_url"`
	Goal         int    `json:"goal"`
}

func toAgencyJSON(agency tenant.Agency) agencyJSON {
	return agencyJSON{
		ID:           agency.ID,
		Name:         agency.Name,
		CompanyEmail: agency.CompanyEmail,
		LogoURL:      agency.LogoURL,
		Goal:         agency.Goal,
	}
}

type subAccountJSON struct {
	ID           string `json:"id"`
	AgencyID     string `json:"agency_id"`
	Name         string `json:"name"`
	CompanyEmail string `json:"company_email,omitempty"`
	Goal         int    `json:"goal"`
}

func toSubAccountJSON(subAccount tenant.SubAccount) subAccountJSON {
	return subAccountJSON{
		ID:           subAccount.ID,
		AgencyID:     subAccount.AgencyID,
		Name:         subAccount.Name,
		CompanyEmail: subAccount.CompanyEmail,
		Goal:         subAccount.Goal,
	}
}

type permissionJSON struct {
	SubAccountID string `json:"sub_account_id"`
	Access       bool   `json:"access"`
}

type meResponse struct {
	User        userJSON         `json:"user"`
	Agency      agencyJSON       `json:"agency"`
	SubAccounts []subAccountJSON `json:"sub_accounts"`
	Permissions []permissionJSON `json:"permissions"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.UserDetails(requestContext(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := meResponse{
		User:        toUserJSON(details.User),
		Agency:      toAgencyJSON(details.Agency),
		SubAccounts: make([]subAccountJSON, 0, len(details.SubAccounts)),
		Permissions: make([]permissionJSON, 0, len(details.Permissions)),
	}
	for _, subAccount := range details.SubAccounts {
		resp.SubAccounts = append(resp.SubAccounts, toSubAccountJSON(subAccount))
	}
	for _, permission := range details.Permissions {
		resp.Permissions = append(resp.Permissions, permissionJSON{SubAccountID: permission.SubAccountID, Access: permission.Access})
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

type createAgencyRequest struct {
	Name         string `json:"name"`
	CompanyEmail string `json:"company_email"`
	LogoURL      string `json:"logo_url"`
}

func (h *Handler) handleCreateAgency(w http.ResponseWriter, r *http.Request) {
	var req createAgencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	agency, err := h.service.CreateAgency(requestContext(r), domain.CreateAgencyInput{
		Name:         req.Name,
		CompanyEmail: req.CompanyEmail,
		LogoURL:      req.LogoURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, toAgencyJSON(agency))
}

// updateAgencyRequest uses pointers so omitted fields stay unchanged.
type updateAgencyRequest struct {
	Name         *string `json:"name"`
	CompanyEmail *string `json:"company_email"`
	LogoURL      *string `json:"logo_url"`
	Goal         *int    `json:"goal"`
}

func (h *Handler) handleUpdateAgency(w http.ResponseWriter, r *http.Request) {
	var req updateAgencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	agency, err := h.service.UpdateAgency(requestContext(r), domain.UpdateAgencyInput{
		AgencyID:     r.PathValue("agencyID"),
		Name:         req.Name,
		CompanyEmail: req.CompanyEmail,
		LogoURL:      req.LogoURL,
		Goal:         req.Goal,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, toAgencyJSON(agency))
}

func (h *Handler) handleDeleteAgency(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAgency(requestContext(r), r.PathValue("agencyID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subAccountRequest struct {
	Name         string `json:"name"`
	CompanyEmail string `json:"company_email"`
	Goal         *int   `json:"goal"`
}

// handleSaveSubAccount creates a sub-account on POST and upserts the one
// named in the path on PUT.
func (h *Handler) handleSaveSubAccount(w http.ResponseWriter, r *http.Request) {
	var req subAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	subAccountID := r.PathValue("subAccountID")
	subAccount, err := h.service.UpsertSubAccount(requestContext(r), domain.SubAccountInput{
		ID:           subAccountID,
		AgencyID:     r.PathValue("agencyID"),
		Name:         req.Name,
		CompanyEmail: req.CompanyEmail,
		Goal:         req.Goal,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if subAccountID == "" {
		status = http.StatusCreated
	}
	_ = WriteJSON(w, status, toSubAccountJSON(subAccount))
}

type activityRequest struct {
	AgencyID     string `json:"agency_id"`
	SubAccountID string `json:"sub_account_id"`
	Description  string `json:"description"`
}

type notificationJSON struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AgencyID      string    `json:"agency_id"`
	SubAccountID  string    `json:"sub_account_id,omitempty"`
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	UserName      string    `json:"user_name,omitempty"`
	UserAvatarURL string    `json:"user_avatar_url,omitempty"`
}

type activityResponse struct {
	Recorded     bool              `json:"recorded"`
	Notification *notificationJSON `json:"notification,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

func (h *Handler) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.RecordActivity(requestContext(r), domain.ActivityInput{
		AgencyID:     req.AgencyID,
		SubAccountID: req.SubAccountID,
		Description:  req.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !result.Recorded() {
		_ = WriteJSON(w, http.StatusAccepted, activityResponse{Reason: string(apperrors.CodeOf(result.Dropped))})
		return
	}
	notification := toNotificationJSON(tenant.FeedEntry{Notification: result.Notification})
	_ = WriteJSON(w, http.StatusCreated, activityResponse{Recorded: true, Notification: &notification})
}

func toNotificationJSON(entry tenant.FeedEntry) notificationJSON {
	return notificationJSON{
		ID:            entry.Notification.ID,
		Text:          entry.Notification.Text,
		AgencyID:      entry.Notification.AgencyID,
		SubAccountID:  entry.Notification.SubAccountID,
		UserID:        entry.Notification.UserID,
		CreatedAt:     entry.Notification.CreatedAt,
		UserName:      entry.UserName,
		UserAvatarURL: entry.UserAvatarURL,
	}
}

type notificationsResponse struct {
	Notifications []notificationJSON `json:"notifications"`
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, apperrors.WithMetadata(apperrors.CodeInvalidInput, "invalid limit", map[string]string{"field": "limit"}))
			return
		}
		limit = parsed
	}
	entries, err := h.service.ListAgencyNotifications(requestContext(r), r.PathValue("agencyID"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := notificationsResponse{Notifications: make([]notificationJSON, 0, len(entries))}
	for _, entry := range entries {
		resp.Notifications = append(resp.Notifications, toNotificationJSON(entry))
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

type invitationRequest struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url"`
}

type invitationJSON struct {
	Email     string    `json:"email"`
	AgencyID  string    `json:"agency_id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleSendInvitation(w http.ResponseWriter, r *http.Request) {
	var req invitationRequest
	if !h.decode(w, r, &req) {
		return
	}
	invitation, err := h.service.SendInvitation(requestContext(r), domain.SendInvitationInput{
		AgencyID:  r.PathValue("agencyID"),
		Email:     req.Email,
		Role:      req.Role,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = WriteJSON(w, http.StatusCreated, invitationJSON{
		Email:     invitation.Email,
		AgencyID:  invitation.AgencyID,
		Role:      invitation.Role.String(),
		Status:    string(invitation.Status),
		CreatedAt: invitation.CreatedAt,
	})
}

type reconcileRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleReconcileRole(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.ReconcileRole(requestContext(r), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, toUserJSON(user))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		h.writeError(w, r, apperrors.Wrap(apperrors.CodeInvalidInput, "decode request body", err))
		return false
	}
	return true
}

// writeError maps err to a status and a user-safe message. Uncoded errors
// are logged because they are not expected by callers.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	code := apperrors.CodeOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", string(code)),
			zap.String("request_id", requestctx.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
	}
	writeStatusError(w, status, string(code), apperrors.UserMessage(err))
}
