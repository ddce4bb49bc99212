package tenant

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in    string
		want  Role
		valid bool
	}{
		{in: "AGENCY_OWNER", want: RoleAgencyOwner, valid: true},
		{in: " agency_admin ", want: RoleAgencyAdmin, valid: true},
		{in: "subaccount_user", want: RoleSubAccountUser, valid: true},
		{in: "SUBACCOUNT_GUEST", want: RoleSubAccountGuest, valid: true},
		{in: "ROOT", want: Role("ROOT"), valid: false},
		{in: "", want: Role(""), valid: false},
	}
	for _, tc := range tests {
		got, ok := ParseRole(tc.in)
		if got != tc.want || ok != tc.valid {
			t.Fatalf("ParseRole(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.valid)
		}
	}
}

func TestRoleClassification(t *testing.T) {
	if RoleAgencyOwner.Invitable() {
		t.Fatal("owner must not be invitable")
	}
	for _, role := range []Role{RoleAgencyAdmin, RoleSubAccountUser, RoleSubAccountGuest} {
		if !role.Invitable() {
			t.Fatalf("%s should be invitable", role)
		}
	}
	if !RoleAgencyOwner.ManagesAgency() || !RoleAgencyAdmin.ManagesAgency() {
		t.Fatal("owner and admin manage the agency")
	}
	if RoleSubAccountUser.ManagesAgency() || !RoleSubAccountGuest.SubAccountScoped() {
		t.Fatal("sub-account roles are sub-account scoped")
	}
	if Role("ROOT").Invitable() {
		t.Fatal("unknown role must not be invitable")
	}
}

func TestDisplayNameKeepsEmptyParts(t *testing.T) {
	tests := []struct {
		given, family, want string
	}{
		{given: "Ada", family: "Lovelace", want: "Ada Lovelace"},
		{given: "Ada", family: "", want: "Ada "},
		{given: "", family: "Lovelace", want: " Lovelace"},
		{given: "", family: "", want: " "},
		{given: " Ada", family: "Lovelace ", want: " Ada Lovelace "},
	}
	for _, tc := range tests {
		if got := DisplayName(tc.given, tc.family); got != tc.want {
			t.Fatalf("DisplayName(%q, %q) = %q, want %q", tc.given, tc.family, got, tc.want)
		}
	}
}

func TestActivityText(t *testing.T) {
	if got := ActivityText("Ada Lovelace", "Joined"); got != "Ada Lovelace | Joined" {
		t.Fatalf("ActivityText = %q", got)
	}
}

func TestNewUserFromInvitation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	inv := Invitation{
		Email:    "A@X.com",
		AgencyID: "A1",
		Role:     RoleSubAccountUser,
		Status:   InvitationPending,
	}

	got, err := NewUserFromInvitation(inv, Member{ExternalID: "ext-1", GivenName: "Ada", FamilyName: "Lovelace"}, now)
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	want := User{
		ID:        "ext-1",
		Email:     "a@x.com",
		Name:      "Ada Lovelace",
		Role:      RoleSubAccountUser,
		AgencyID:  "A1",
		AvatarURL: "",
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestNewUserFromInvitationRejectsOwner(t *testing.T) {
	_, err := NewUserFromInvitation(Invitation{Email: "o@x.com", AgencyID: "A1", Role: RoleAgencyOwner}, Member{ExternalID: "ext"}, time.Now())
	if !errors.Is(err, ErrOwnerInvitation) {
		t.Fatalf("expected owner invitation error, got %v", err)
	}
}

func TestNewAgencyOwner(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.FixedZone("BRT", -3*60*60))
	agency := Agency{ID: "agency-1", Name: "Plura"}

	got := NewAgencyOwner(agency, " Owner@Example.com ", Member{ExternalID: "ext-1", GivenName: "Ada", FamilyName: "Lovelace"}, "https://cdn.example.com/ada.png", now)
	want := User{
		ID:        "ext-1",
		Email:     "owner@example.com",
		Name:      "Ada Lovelace",
		Role:      RoleAgencyOwner,
		AgencyID:  "agency-1",
		AvatarURL: "https://cdn.example.com/ada.png",
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("owner mismatch (-want +got):\n%s", diff)
	}
}
