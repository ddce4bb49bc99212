// Package domain implements the tenant membership workflows: accepting
// invitations, mirroring roles onto the identity directory and recording the
// agency activity feed.
//
// Acceptance runs materialize, propagate, notify and retire in that order.
// The unique email constraint on team members is the only serialization
// point; a losing concurrent acceptance resolves to the winner's agency.
package domain
