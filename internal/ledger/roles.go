package ledger

import (
	"context"

	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
)

// GrantRole assigns role to account. Only the admin may grant roles and
// granting a role that is already held succeeds without emitting anything.
func (l *Ledger) GrantRole(ctx context.Context, caller, account credential.Account, role credential.Role) (err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.grant_role")
	defer func() { op.End(err) }()

	if caller != l.admin {
		return skerrors.Unauthorized("only the admin account may grant roles")
	}
	if err := account.Validate(); err != nil {
		return skerrors.Wrap(skerrors.CodeInvalidInput, "account", err)
	}
	if !role.Valid() {
		return skerrors.InvalidInput("unknown role %q", role)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.st.hasRole(account, role) {
		return nil
	}

	c := l.begin(caller)
	addRole(c, account, role)
	if err := l.apply(ctx, c); err != nil {
		return err
	}

	l.log.WithAccount("account", account).Info("role granted", "role", role)
	return nil
}

// addRole appends a role assignment and its RoleGranted event to c.
func addRole(c *commit, account credential.Account, role credential.Role) {
	c.Roles = append(c.Roles, credential.RoleAssignment{
		Account:   account,
		Role:      role,
		GrantedBy: c.actor,
		GrantedAt: c.at,
	})
	c.emit(credential.Event{
		Type:    credential.EventRoleGranted,
		Account: account,
		Role:    role,
	})
}

// HasRole reports whether account holds role.
func (l *Ledger) HasRole(_ context.Context, account credential.Account, role credential.Role) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.hasRole(account, role)
}

// Roles lists the roles account holds, TEACHER before ISSUER.
func (l *Ledger) Roles(_ context.Context, account credential.Account) []credential.Role {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []credential.Role
	for _, r := range []credential.Role{credential.RoleTeacher, credential.RoleIssuer} {
		if l.st.hasRole(account, r) {
			out = append(out, r)
		}
	}
	return out
}
