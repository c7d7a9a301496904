// Package authroles decides administrative access for authenticated users.
package authroles

import (
	domainauth "github.com/weeklydigest/sessionauth/internal/domain/auth"
	"github.com/weeklydigest/sessionauth/internal/ports"
)

var _ ports.AdminPolicy = DisplayNamePolicy{}

// DisplayNamePolicy grants admin access to the single user whose display name matches.
// An empty AdminName grants nobody.
type DisplayNamePolicy struct {
	AdminName string
}

func (p DisplayNamePolicy) IsAdmin(u *domainauth.User) bool {
	return u != nil && p.AdminName != "" && u.DisplayName == p.AdminName
}
