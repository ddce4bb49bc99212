// Package tenant defines the agency tenancy model: agencies, sub-accounts,
// team members, invitations and the activity feed.
//
// Values here carry no persistence or transport concerns; storage and the
// invitation workflow translate to and from them.
package tenant
