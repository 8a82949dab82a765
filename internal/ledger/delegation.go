package ledger

import (
	"context"

	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
	skerrors "github.com/MasterChonk/SkillToken-V2/pkg/errors"
)

// DelegateIssuer lets grantee issue and validate on the caller's behalf
// within scope. A course scope needs the caller to own the course; the
// all-courses scope needs the TEACHER role. The grantee also receives the
// ISSUER role. Delegating a grant that is already active returns it as is.
func (l *Ledger) DelegateIssuer(ctx context.Context, caller, grantee credential.Account, scope credential.Scope) (_ credential.Grant, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.delegate_issuer")
	defer func() { op.End(err) }()

	if !scope.Valid() {
		return credential.Grant{}, skerrors.InvalidInput("invalid scope %+v", scope)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkGrantor(caller, scope); err != nil {
		return credential.Grant{}, err
	}
	if err := grantee.Validate(); err != nil {
		return credential.Grant{}, skerrors.Wrap(skerrors.CodeInvalidInput, "grantee", err)
	}
	if grantee == caller {
		return credential.Grant{}, skerrors.InvalidInput("cannot delegate to yourself")
	}

	if g, ok := l.st.activeGrant(caller, grantee, scope); ok {
		return g, nil
	}

	c := l.begin(caller)
	g := credential.Grant{
		ID:        uint64(len(l.st.grants)) + 1,
		Grantor:   caller,
		Grantee:   grantee,
		Scope:     scope,
		Active:    true,
		CreatedAt: c.at,
	}
	c.Grants = append(c.Grants, g)
	c.emit(grantEvent(credential.EventIssuerDelegated, g))
	if !l.st.hasRole(grantee, credential.RoleIssuer) {
		addRole(c, grantee, credential.RoleIssuer)
	}
	if err := l.apply(ctx, c); err != nil {
		return credential.Grant{}, err
	}

	l.log.WithAccount("grantor", caller).Info("issuer delegated",
		"grant_id", g.ID,
		"grantee", grantee.Short(),
		"scope", scope.String(),
	)
	return g, nil
}

func (l *Ledger) checkGrantor(caller credential.Account, scope credential.Scope) error {
	if scope.All {
		if !l.st.hasRole(caller, credential.RoleTeacher) {
			return skerrors.Unauthorized("%s is not a teacher", caller)
		}
		return nil
	}
	course, ok := l.st.course(scope.CourseID)
	if !ok {
		return skerrors.NotFound("course %d", scope.CourseID)
	}
	if course.Owner != caller {
		return skerrors.Unauthorized("%s does not own course %d", caller, scope.CourseID)
	}
	return nil
}

// RevokeDelegation deactivates the caller's active grant to grantee with
// exactly this scope. The grant record is kept.
func (l *Ledger) RevokeDelegation(ctx context.Context, caller, grantee credential.Account, scope credential.Scope) (_ credential.Grant, err error) {
	op, ctx := observability.StartOperation(ctx, l.metrics, "ledger.revoke_delegation")
	defer func() { op.End(err) }()

	if !scope.Valid() {
		return credential.Grant{}, skerrors.InvalidInput("invalid scope %+v", scope)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.st.activeGrant(caller, grantee, scope)
	if !ok {
		for _, id := range l.st.grantsTo[grantee] {
			other := &l.st.grants[id-1]
			if other.Active && other.Scope == scope {
				return credential.Grant{}, skerrors.Unauthorized("grant %d belongs to %s", other.ID, other.Grantor)
			}
		}
		return credential.Grant{}, skerrors.NotFound("no active %s grant from %s to %s", scope, caller, grantee)
	}

	c := l.begin(caller)
	at := c.at
	g.Active = false
	g.RevokedAt = &at
	c.Grants = append(c.Grants, g)
	c.emit(grantEvent(credential.EventDelegationRevoked, g))
	if err := l.apply(ctx, c); err != nil {
		return credential.Grant{}, err
	}

	l.log.WithAccount("grantor", caller).Info("delegation revoked", "grant_id", g.ID)
	return g, nil
}

func grantEvent(t credential.EventType, g credential.Grant) credential.Event {
	scope := g.Scope
	e := credential.Event{
		Type:    t,
		GrantID: g.ID,
		Owner:   g.Grantor,
		Grantee: g.Grantee,
		Scope:   &scope,
	}
	if !scope.All {
		e.CourseID = scope.CourseID
	}
	return e
}

// IsAuthorized reports whether grantee holds an active grant from grantor
// covering courseID. Ownership is not considered.
func (l *Ledger) IsAuthorized(_ context.Context, grantor, grantee credential.Account, courseID uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.covered(grantor, grantee, courseID)
}

// GrantsBy lists every grant made by grantor, revoked ones included.
func (l *Ledger) GrantsBy(_ context.Context, grantor credential.Account) []credential.Grant {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.grantList(l.st.grantsBy[grantor])
}

// GrantsTo lists every grant held by grantee, revoked ones included.
func (l *Ledger) GrantsTo(_ context.Context, grantee credential.Account) []credential.Grant {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.grantList(l.st.grantsTo[grantee])
}
