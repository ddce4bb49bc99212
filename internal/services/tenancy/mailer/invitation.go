package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

// InvitationMailer emails invitees a link to sign in and accept.
type InvitationMailer struct {
	sender  Sender
	from    string
	baseURL string
}

// NewInvitationMailer builds a mailer that links invitees to baseURL.
func NewInvitationMailer(sender Sender, from, baseURL string) (*InvitationMailer, error) {
	if sender == nil {
		return nil, errors.New("mail sender is required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("from address is required")
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid public base url %q", baseURL)
	}
	return &InvitationMailer{sender: sender, from: from, baseURL: base.String()}, nil
}

// SendInvitation emails the invitee of invitation.
func (m *InvitationMailer) SendInvitation(ctx context.Context, invitation tenant.Invitation, agency tenant.Agency) error {
	agencyName := strings.TrimSpace(agency.Name)
	if agencyName == "" {
		agencyName = "an agency"
	}
	subject := "You have been invited to join " + agencyName
	body := fmt.Sprintf(`You have been invited to join %s as %s.

Sign in with this email address to accept:

  %s

If you were not expecting this invitation you can ignore this message.
`, agencyName, roleLabel(invitation.Role), m.signInURL(invitation.Email))
	return m.sender.Send(ctx, m.from, invitation.Email, subject, body)
}

func (m *InvitationMailer) signInURL(email string) string {
	return m.baseURL + "/sign-in?" + url.Values{"email": {email}}.Encode()
}

func roleLabel(role tenant.Role) string {
	switch role {
	case tenant.RoleAgencyAdmin:
		return "an agency admin"
	case tenant.RoleSubAccountUser:
		return "a sub-account user"
	case tenant.RoleSubAccountGuest:
		return "a sub-account guest"
	default:
		return "a team member"
	}
}
