package server

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/agencyhub/internal/platform/healthprobe"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity/session"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		HTTPAddr:         "127.0.0.1:0",
		GRPCAddr:         "127.0.0.1:0",
		DBPath:           filepath.Join(t.TempDir(), "nested", "agencyhub.db"),
		IdentityProvider: ProviderSession,
		Session:          session.Config{Secret: testSecret},
	}
}

func startServer(t *testing.T, cfg Config, logger *zap.Logger) *Server {
	t.Helper()
	srv, err := New(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	t.Cleanup(func() {
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Fatalf("serve: %v", serveErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for server shutdown")
		}
	})
	return srv
}

func TestServerAcceptsInvitationEndToEnd(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv := startServer(t, testConfig(t), zap.New(core))
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := srv.store.PutAgency(ctx, tenant.Agency{ID: "A1", Name: "Plura", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("put agency: %v", err)
	}
	if err := srv.store.PutInvitation(ctx, tenant.Invitation{
		Email:     "sam@example.com",
		AgencyID:  "A1",
		Role:      tenant.RoleSubAccountUser,
		Status:    tenant.InvitationPending,
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("put invitation: %v", err)
	}

	issuer, err := session.New(session.Config{Secret: testSecret}, srv.store)
	if err != nil {
		t.Fatalf("new session issuer: %v", err)
	}
	token, err := issuer.Issue(ctx, identity.Identity{
		ExternalID: "ext-sam",
		Email:      "sam@example.com",
		GivenName:  "Sam",
		FamilyName: "Rivera",
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+srv.HTTPAddr()+"/v1/landing", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("landing request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("landing status = %d", resp.StatusCode)
	}
	var body struct {
		AgencyID   string `json:"agency_id"`
		Outcome    string `json:"outcome"`
		Path       string `json:"path"`
		Authorized bool   `json:"authorized"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode landing: %v", err)
	}
	if body.AgencyID != "A1" || body.Outcome != "accepted" || body.Path != "/subaccount" || !body.Authorized {
		t.Fatalf("landing = %+v", body)
	}

	user, err := srv.store.GetUserByEmail(ctx, "sam@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.ID != "ext-sam" || user.Name != "Sam Rivera" || user.Role != tenant.RoleSubAccountUser {
		t.Fatalf("user = %+v", user)
	}
	role, err := srv.store.GetIdentityRole(ctx, "ext-sam")
	if err != nil {
		t.Fatalf("get identity role: %v", err)
	}
	if role != tenant.RoleSubAccountUser {
		t.Fatalf("propagated role = %q", role)
	}
	if _, err := srv.store.GetPendingInvitation(ctx, "sam@example.com"); err == nil {
		t.Fatal("expected invitation to be retired")
	}
	feed, err := srv.store.ListAgencyFeed(ctx, "A1", 10)
	if err != nil {
		t.Fatalf("list feed: %v", err)
	}
	if len(feed) != 1 || feed[0].Notification.Text != "Sam Rivera | Joined" {
		t.Fatalf("feed = %+v", feed)
	}
	if logs.FilterMessage("http request").Len() == 0 {
		t.Fatal("expected access log entry")
	}
}

func issueToken(t *testing.T, srv *Server, who identity.Identity) string {
	t.Helper()
	issuer, err := session.New(session.Config{Secret: testSecret}, srv.store)
	if err != nil {
		t.Fatalf("new session issuer: %v", err)
	}
	token, err := issuer.Issue(context.Background(), who)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, srv *Server, method, path, token, body string, wantStatus int) map[string]any {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, "http://"+srv.HTTPAddr()+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s status = %d, want %d, body %v", method, path, resp.StatusCode, wantStatus, decoded)
	}
	return decoded
}

func TestServerAgencyLifecycleEndToEnd(t *testing.T) {
	srv := startServer(t, testConfig(t), nil)
	ctx := context.Background()
	token := issueToken(t, srv, identity.Identity{ExternalID: "ext-ada", Email: "ada@example.com", GivenName: "Ada", FamilyName: "Lovelace"})

	created := doJSON(t, srv, http.MethodPost, "/v1/agencies", token, `{"name":"Plura"}`, http.StatusCreated)
	agencyID, _ := created["id"].(string)
	if agencyID == "" || created["goal"] != float64(tenant.DefaultAgencyGoal) {
		t.Fatalf("created agency = %v", created)
	}
	role, err := srv.store.GetIdentityRole(ctx, "ext-ada")
	if err != nil {
		t.Fatalf("get identity role: %v", err)
	}
	if role != tenant.RoleAgencyOwner {
		t.Fatalf("propagated role = %q, want owner", role)
	}

	doJSON(t, srv, http.MethodPatch, "/v1/agencies/"+agencyID, token, `{"goal":8}`, http.StatusOK)
	sub := doJSON(t, srv, http.MethodPost, "/v1/agencies/"+agencyID+"/sub-accounts", token, `{"name":"Bakery"}`, http.StatusCreated)
	subAccountID, _ := sub["id"].(string)
	if subAccountID == "" {
		t.Fatalf("sub-account = %v", sub)
	}

	me := doJSON(t, srv, http.MethodGet, "/v1/me", token, "", http.StatusOK)
	agency, _ := me["agency"].(map[string]any)
	subAccounts, _ := me["sub_accounts"].([]any)
	permissions, _ := me["permissions"].([]any)
	if agency["goal"] != float64(8) || len(subAccounts) != 1 || len(permissions) != 1 {
		t.Fatalf("me = %v", me)
	}
	feed, err := srv.store.ListAgencyFeed(ctx, agencyID, 10)
	if err != nil {
		t.Fatalf("list feed: %v", err)
	}
	texts := map[string]bool{}
	for _, entry := range feed {
		texts[entry.Notification.Text] = true
	}
	if len(feed) != 2 || !texts["Ada Lovelace | Saved sub-account Bakery"] || !texts["Ada Lovelace | Updated their goal to 8"] {
		t.Fatalf("feed = %+v", feed)
	}

	doJSON(t, srv, http.MethodDelete, "/v1/agencies/"+agencyID, token, "", http.StatusNoContent)
	if _, err := srv.store.GetAgency(ctx, agencyID); err == nil {
		t.Fatal("expected agency to be deleted")
	}
	landing := doJSON(t, srv, http.MethodGet, "/v1/landing", token, "", http.StatusOK)
	if landing["outcome"] != "none" {
		t.Fatalf("landing after delete = %v", landing)
	}
}

func TestServerRejectsInvitationForIdentityStoredUnderAnotherEmail(t *testing.T) {
	srv := startServer(t, testConfig(t), nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := srv.store.PutAgency(ctx, tenant.Agency{ID: "A1", Name: "Plura", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("put agency: %v", err)
	}
	if err := srv.store.CreateUser(ctx, tenant.User{ID: "ext-sam", Email: "sam@old.example.com", Name: "Sam Rivera", Role: tenant.RoleSubAccountUser, AgencyID: "A1", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := srv.store.PutInvitation(ctx, tenant.Invitation{Email: "sam@new.example.com", AgencyID: "A1", Role: tenant.RoleAgencyAdmin, Status: tenant.InvitationPending, CreatedAt: now}); err != nil {
		t.Fatalf("put invitation: %v", err)
	}
	token := issueToken(t, srv, identity.Identity{ExternalID: "ext-sam", Email: "sam@new.example.com", GivenName: "Sam", FamilyName: "Rivera"})

	for range 2 {
		body := doJSON(t, srv, http.MethodGet, "/v1/landing", token, "", http.StatusConflict)
		errBody, _ := body["error"].(map[string]any)
		if errBody["code"] != "IDENTITY_IN_USE" {
			t.Fatalf("error body = %v", body)
		}
	}
	if _, err := srv.store.GetPendingInvitation(ctx, "sam@new.example.com"); err != nil {
		t.Fatalf("invitation should stay pending: %v", err)
	}
}

func TestServerReportsGRPCHealth(t *testing.T) {
	srv := startServer(t, testConfig(t), nil)

	conn, err := grpc.NewClient(srv.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial health: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := conn.Close(); closeErr != nil {
			t.Fatalf("close gRPC connection: %v", closeErr)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := grpc_health_v1.NewHealthClient(conn)
	for _, service := range []string{"", healthServiceName} {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("health check %q: %v", service, err)
		}
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Fatalf("health %q = %v, want SERVING", service, resp.GetStatus())
		}
	}
	if err := healthprobe.Check(ctx, srv.GRPCAddr(), healthServiceName, nil); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestServeNilServer(t *testing.T) {
	t.Parallel()

	var srv *Server
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
	if srv.HTTPAddr() != "" || srv.GRPCAddr() != "" {
		t.Fatal("nil server must report empty addresses")
	}
	srv.Close()
}

func TestNewRejectsBadDirectoryConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown provider", mutate: func(cfg *Config) { cfg.IdentityProvider = "ldap" }, wantErr: "unknown identity provider"},
		{name: "short session secret", mutate: func(cfg *Config) { cfg.Session.Secret = "short" }, wantErr: "session secret"},
		{name: "mail without sender address", mutate: func(cfg *Config) {
			cfg.Mail = MailConfig{SendGridAPIKey: "SG.key", PublicBaseURL: "https://app.example.com"}
		}, wantErr: "invitation mailer"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t)
			tc.mutate(&cfg)
			srv, err := New(context.Background(), cfg, nil)
			if err == nil {
				srv.Close()
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestNewRejectsBusyAddress(t *testing.T) {
	t.Parallel()

	first, err := New(context.Background(), testConfig(t), nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(first.Close)

	cfg := testConfig(t)
	cfg.HTTPAddr = first.HTTPAddr()
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected listen error for busy address")
	}
}

func TestNewInvitationMailerOptional(t *testing.T) {
	t.Parallel()

	got, err := newInvitationMailer(MailConfig{})
	if err != nil || got != nil {
		t.Fatalf("unconfigured mail = %v, %v; want nil, nil", got, err)
	}
	got, err = newInvitationMailer(MailConfig{
		SendGridAPIKey: "SG.key",
		From:           "no-reply@example.com",
		PublicBaseURL:  "https://app.example.com",
	})
	if err != nil || got == nil {
		t.Fatalf("configured mail = %v, %v", got, err)
	}
}
