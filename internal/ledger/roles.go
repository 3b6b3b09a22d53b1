package ledger

import "fmt"

// Role names the semantic purpose of an account used by automated postings.
type Role string

const (
	RoleCash               Role = "CASH"
	RoleAccountsReceivable Role = "ACCOUNTS_RECEIVABLE"
	RoleDefaultRevenue     Role = "DEFAULT_REVENUE"
	RoleDiningRevenue      Role = "DINING_REVENUE"
	RoleRecreationRevenue  Role = "RECREATION_REVENUE"
)

// Roles maps every posting role to an account code. It is built once from
// configuration and injected into the services that post automatically.
type Roles struct {
	Cash               string
	AccountsReceivable string
	DefaultRevenue     string
	DiningRevenue      string
	RecreationRevenue  string
}

// DefaultRoles matches DefaultChart.
func DefaultRoles() Roles {
	return Roles{
		Cash:               "1000",
		AccountsReceivable: "1100",
		DefaultRevenue:     "4000",
		DiningRevenue:      "4100",
		RecreationRevenue:  "4300",
	}
}

// Code returns the account code mapped to role.
func (r Roles) Code(role Role) (string, error) {
	var code string
	switch role {
	case RoleCash:
		code = r.Cash
	case RoleAccountsReceivable:
		code = r.AccountsReceivable
	case RoleDefaultRevenue:
		code = r.DefaultRevenue
	case RoleDiningRevenue:
		code = r.DiningRevenue
	case RoleRecreationRevenue:
		code = r.RecreationRevenue
	default:
		return "", fmt.Errorf("%w: %s", ErrRoleUnmapped, role)
	}
	if code == "" {
		return "", fmt.Errorf("%w: %s", ErrRoleUnmapped, role)
	}
	return code, nil
}

// Validate ensures every role has a code.
func (r Roles) Validate() error {
	for _, role := range []Role{RoleCash, RoleAccountsReceivable, RoleDefaultRevenue, RoleDiningRevenue, RoleRecreationRevenue} {
		if _, err := r.Code(role); err != nil {
			return err
		}
	}
	if r.Cash == r.AccountsReceivable {
		return fmt.Errorf("%w: cash and receivable accounts must differ", ErrRoleUnmapped)
	}
	return nil
}

func (r Roles) codes() []string {
	return []string{r.Cash, r.AccountsReceivable, r.DefaultRevenue, r.DiningRevenue, r.RecreationRevenue}
}
