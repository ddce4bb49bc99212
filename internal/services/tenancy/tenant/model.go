package tenant

import (
	"strings"
	"time"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
)

// Invitation offers agency membership to an email address.
type Invitation struct {
	Email     string
	AgencyID  string
	Role      Role
	Status    InvitationStatus
	AvatarURL string
	CreatedAt time.Time
}

// User is an agency team member. ID equals the identity directory subject.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	AgencyID  string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Default goals for new tenants.
const (
	DefaultAgencyGoal     = 5
	DefaultSubAccountGoal = 5000
)

// Agency is the top-level tenant.
type Agency struct {
	ID           string
	Name         string
	CompanyEmail string
	LogoURL      string
	Goal         int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubAccount is a child tenant of an agency.
type SubAccount struct {
	ID           string
	AgencyID     string
	Name         string
	CompanyEmail string
	Goal         int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Permission grants or denies a user's access to one sub-account.
type Permission struct {
	ID           string
	Email        string
	SubAccountID string
	Access       bool
}

// Notification is one append-only activity feed entry.
type Notification struct {
	ID           string
	Text         string
	AgencyID     string
	SubAccountID string
	UserID       string
	CreatedAt    time.Time
}

// NormalizeEmail lower-cases and trims an address so lookups are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayName joins given and family name with a single space. Empty parts
// are kept, so a missing family name leaves a trailing space.
func DisplayName(givenName, familyName string) string {
	return givenName + " " + familyName
}

// ActivityText renders the feed line attributed to userName.
func ActivityText(userName, description string) string {
	return userName + " | " + description
}

// FeedEntry is a notification joined with the member it is attributed to.
type FeedEntry struct {
	Notification  Notification
	UserName      string
	UserAvatarURL string
}
