package domain

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/identity"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/storage"
	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func lockedSequentialIDGenerator(ids ...string) func() (string, error) {
	queue := append([]string(nil), ids...)
	index := 0
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if index >= len(queue) {
			return "", ErrIDGeneratorExhausted
		}
		value := queue[index]
		index++
		return value, nil
	}
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func withIdentity(email, given, family, externalID string) context.Context {
	return identity.WithIdentity(context.Background(), identity.Identity{
		ExternalID: externalID,
		Email:      email,
		GivenName:  given,
		FamilyName: family,
	})
}

type harness struct {
	svc       *Service
	store     *fakeStore
	directory *fakeDirectory
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newFakeStore()
	directory := &fakeDirectory{roles: map[string]tenant.Role{}}
	logger, logs := observedLogger()
	svc := NewService(store, directory, Options{
		Clock:  fixedClock(testNow),
		NewID:  lockedSequentialIDGenerator("n-1", "n-2", "n-3", "n-4", "n-5"),
		Logger: logger,
	})
	return &harness{svc: svc, store: store, directory: directory, logs: logs}
}

type fakeDirectory struct {
	mu    sync.Mutex
	roles map[string]tenant.Role
	calls int
	err   error
}

func (d *fakeDirectory) SetRole(_ context.Context, externalID string, role tenant.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return d.err
	}
	d.roles[externalID] = role
	return nil
}

func (d *fakeDirectory) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDirectory) role(externalID string) tenant.Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roles[externalID]
}

// fakeStore mirrors the SQLite constraints the workflows rely on: unique
// member email and id, one invitation per email.
type fakeStore struct {
	mu            sync.Mutex
	invitations   map[string]tenant.Invitation
	users         map[string]tenant.User
	agencies      map[string]tenant.Agency
	subAccounts   map[string]tenant.SubAccount
	permissions   []tenant.Permission
	notifications []tenant.Notification

	deleteErr error
	// pendingGate, when set, holds GetPendingInvitation until it is closed.
	pendingGate chan struct{}
	pendingHits chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invitations: map[string]tenant.Invitation{},
		users:       map[string]tenant.User{},
		agencies:    map[string]tenant.Agency{},
		subAccounts: map[string]tenant.SubAccount{},
	}
}

func (s *fakeStore) seedAgency(agencyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agencies[agencyID] = tenant.Agency{ID: agencyID, Name: "Agency " + agencyID, CreatedAt: testNow, UpdatedAt: testNow}
}

func (s *fakeStore) seedSubAccount(subAccountID, agencyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subAccounts[subAccountID] = tenant.SubAccount{ID: subAccountID, AgencyID: agencyID, Name: "Sub " + subAccountID}
}

func (s *fakeStore) seedUser(user tenant.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = tenant.NormalizeEmail(user.Email)
	s.users[user.Email] = user
}

func (s *fakeStore) seedInvitation(invitation tenant.Invitation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invitation.Email = tenant.NormalizeEmail(invitation.Email)
	if invitation.Status == "" {
		invitation.Status = tenant.InvitationPending
	}
	s.invitations[invitation.Email] = invitation
}

func (s *fakeStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *fakeStore) hasInvitation(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.invitations[tenant.NormalizeEmail(email)]
	return ok
}

func (s *fakeStore) notificationList() []tenant.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tenant.Notification(nil), s.notifications...)
}

func (s *fakeStore) PutInvitation(_ context.Context, invitation tenant.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agencies[invitation.AgencyID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.invitations[invitation.Email]; ok {
		return storage.ErrConflict
	}
	s.invitations[invitation.Email] = invitation
	return nil
}

// GetPendingInvitation reads before waiting on pendingGate so concurrent
// callers all observe the invitation as it was before any of them acted.
func (s *fakeStore) GetPendingInvitation(_ context.Context, email string) (tenant.Invitation, error) {
	s.mu.Lock()
	invitation, ok := s.invitations[tenant.NormalizeEmail(email)]
	s.mu.Unlock()
	if s.pendingGate != nil {
		s.pendingHits <- struct{}{}
		<-s.pendingGate
	}
	if !ok || invitation.Status != tenant.InvitationPending {
		return tenant.Invitation{}, storage.ErrNotFound
	}
	return invitation, nil
}

func (s *fakeStore) DeleteInvitation(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	email = tenant.NormalizeEmail(email)
	if _, ok := s.invitations[email]; !ok {
		return storage.ErrNotFound
	}
	delete(s.invitations, email)
	return nil
}

func (s *fakeStore) CreateUser(_ context.Context, user tenant.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agencies[user.AgencyID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.users[user.Email]; ok {
		return storage.ErrConflict
	}
	for _, existing := range s.users {
		if existing.ID == user.ID {
			return storage.ErrConflict
		}
	}
	s.users[user.Email] = user
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (tenant.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return tenant.User{}, storage.ErrNotFound
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (tenant.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[tenant.NormalizeEmail(email)]
	if !ok {
		return tenant.User{}, storage.ErrNotFound
	}
	return user, nil
}

func (s *fakeStore) FindAgencyUser(_ context.Context, agencyID string) (tenant.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.earliestMemberLocked(agencyID)
}

func (s *fakeStore) FindSubAccountAgencyUser(_ context.Context, subAccountID string) (tenant.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subAccount, ok := s.subAccounts[subAccountID]
	if !ok {
		return tenant.User{}, storage.ErrNotFound
	}
	return s.earliestMemberLocked(subAccount.AgencyID)
}

func (s *fakeStore) earliestMemberLocked(agencyID string) (tenant.User, error) {
	var members []tenant.User
	for _, user := range s.users {
		if user.AgencyID == agencyID {
			members = append(members, user)
		}
	}
	if len(members) == 0 {
		return tenant.User{}, storage.ErrNotFound
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		}
		return members[i].ID < members[j].ID
	})
	return members[0], nil
}

func (s *fakeStore) PutPermission(_ context.Context, permission tenant.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions = append(s.permissions, permission)
	return nil
}

func (s *fakeStore) ListPermissionsByEmail(_ context.Context, email string) ([]tenant.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tenant.Permission
	for _, permission := range s.permissions {
		if permission.Email == tenant.NormalizeEmail(email) {
			out = append(out, permission)
		}
	}
	return out, nil
}

func (s *fakeStore) PutAgency(_ context.Context, agency tenant.Agency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agencies[agency.ID] = agency
	return nil
}

func (s *fakeStore) CreateAgency(_ context.Context, agency tenant.Agency, owner tenant.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agencies[agency.ID]; ok {
		return storage.ErrConflict
	}
	if _, ok := s.users[owner.Email]; ok {
		return storage.ErrConflict
	}
	for _, existing := range s.users {
		if existing.ID == owner.ID {
			return storage.ErrConflict
		}
	}
	s.agencies[agency.ID] = agency
	s.users[owner.Email] = owner
	return nil
}

func (s *fakeStore) DeleteAgency(_ context.Context, agencyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agencies[agencyID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.agencies, agencyID)
	for id, subAccount := range s.subAccounts {
		if subAccount.AgencyID == agencyID {
			delete(s.subAccounts, id)
		}
	}
	for email, user := range s.users {
		if user.AgencyID == agencyID {
			delete(s.users, email)
		}
	}
	for email, invitation := range s.invitations {
		if invitation.AgencyID == agencyID {
			delete(s.invitations, email)
		}
	}
	kept := s.notifications[:0]
	for _, notification := range s.notifications {
		if notification.AgencyID != agencyID {
			kept = append(kept, notification)
		}
	}
	s.notifications = kept
	permissions := s.permissions[:0]
	for _, permission := range s.permissions {
		if _, ok := s.subAccounts[permission.SubAccountID]; ok {
			permissions = append(permissions, permission)
		}
	}
	s.permissions = permissions
	return nil
}

func (s *fakeStore) GetAgency(_ context.Context, agencyID string) (tenant.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agency, ok := s.agencies[agencyID]
	if !ok {
		return tenant.Agency{}, storage.ErrNotFound
	}
	return agency, nil
}

func (s *fakeStore) PutSubAccount(_ context.Context, subAccount tenant.SubAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subAccounts[subAccount.ID] = subAccount
	return nil
}

func (s *fakeStore) GetSubAccount(_ context.Context, subAccountID string) (tenant.SubAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subAccount, ok := s.subAccounts[subAccountID]
	if !ok {
		return tenant.SubAccount{}, storage.ErrNotFound
	}
	return subAccount, nil
}

func (s *fakeStore) ListSubAccounts(_ context.Context, agencyID string) ([]tenant.SubAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tenant.SubAccount
	for _, subAccount := range s.subAccounts {
		if subAccount.AgencyID == agencyID {
			out = append(out, subAccount)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) AppendNotification(_ context.Context, notification tenant.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *fakeStore) ListAgencyFeed(_ context.Context, agencyID string, limit int) ([]tenant.FeedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tenant.FeedEntry
	for i := len(s.notifications) - 1; i >= 0; i-- {
		notification := s.notifications[i]
		if notification.AgencyID != agencyID {
			continue
		}
		entry := tenant.FeedEntry{Notification: notification}
		for _, user := range s.users {
			if user.ID == notification.UserID {
				entry.UserName = user.Name
				entry.UserAvatarURL = user.AvatarURL
			}
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
