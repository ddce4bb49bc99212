package domain

import (
	"net/url"
	"strings"

	"github.com/louisbranch/agencyhub/internal/services/tenancy/tenant"
)

// oauthStateSeparator splits "path___agencyId" OAuth state values.
const oauthStateSeparator = "___"

// LandingInput is what the landing decision needs about the caller.
type LandingInput struct {
	AgencyID string
	Role     tenant.Role
	Plan     string
	State    string
	Code     string
}

// LandingDecision is where the caller should be sent.
type LandingDecision struct {
	Path       string
	Authorized bool
}

// Landing decides where a resolved identity lands after sign-in.
func Landing(input LandingInput) LandingDecision {
	agencyID := strings.TrimSpace(input.AgencyID)
	if agencyID == "" {
		return LandingDecision{Path: "/agency", Authorized: true}
	}
	switch {
	case input.Role.SubAccountScoped():
		return LandingDecision{Path: "/subaccount", Authorized: true}
	case input.Role.ManagesAgency():
	default:
		return LandingDecision{}
	}

	if plan := strings.TrimSpace(input.Plan); plan != "" {
		return LandingDecision{
			Path:       "/agency/" + url.PathEscape(agencyID) + "/billing?" + url.Values{"plan": {plan}}.Encode(),
			Authorized: true,
		}
	}
	if state := strings.TrimSpace(input.State); state != "" {
		parts := strings.Split(state, oauthStateSeparator)
		if len(parts) < 2 || parts[1] == "" {
			return LandingDecision{}
		}
		statePath, stateAgencyID := parts[0], parts[1]
		return LandingDecision{
			Path:       "/agency/" + url.PathEscape(stateAgencyID) + "/" + strings.TrimPrefix(statePath, "/") + "?" + url.Values{"code": {input.Code}}.Encode(),
			Authorized: true,
		}
	}
	return LandingDecision{Path: "/agency/" + url.PathEscape(agencyID), Authorized: true}
}
