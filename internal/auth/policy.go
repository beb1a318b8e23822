package auth

import "github.com/your-org/facerecog/internal/models"

type Capability string

const (
	CapAccountsView  Capability = "accounts:view"
	CapAccountsEdit  Capability = "accounts:edit"
	CapDashboardView Capability = "dashboard:view"
	CapRosterManage  Capability = "roster:manage"
	CapEventsWatch   Capability = "events:watch"
)

// Policy maps each role to the capabilities it holds.
type Policy map[models.Role][]Capability

// DefaultPolicy restricts the dashboard and account pages to managers.
// Both roles administer the roster.
func DefaultPolicy() Policy {
	return Policy{
		models.RoleManager: {CapAccountsView, CapAccountsEdit, CapDashboardView, CapRosterManage, CapEventsWatch},
		models.RoleCashier: {CapRosterManage},
	}
}

func (p Policy) Allows(role models.Role, want Capability) bool {
	for _, c := range p[role] {
		if c == want {
			return true
		}
	}
	return false
}
