package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/accesscore/internal/audit"
	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
	"github.com/dropDatabas3/accesscore/internal/domain/repository"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
	"github.com/dropDatabas3/accesscore/internal/store/memory"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	events []audit.Event
	err    error
}

func (r *recorder) Record(_ context.Context, e audit.Event) error {
	r.events = append(r.events, e)
	return r.err
}

func setup(t *testing.T) (Service, *memory.Store, *recorder) {
	t.Helper()
	mem := memory.New()
	rec := &recorder{}
	svc := NewService(Deps{
		Roles:       mem.Roles(),
		Permissions: mem.Permissions(),
		Assignments: mem.Assignments(),
		Users:       mem.Users(),
		Audit:       rec,
		Now:         func() time.Time { return t0 },
	})
	return svc, mem, rec
}

func addUser(t *testing.T, mem *memory.Store, username, tenant string) *repository.User {
	t.Helper()
	u := &repository.User{Username: username, Email: username + "@example.com", TenantID: tenant, Enabled: true}
	require.NoError(t, mem.Users().Create(context.Background(), u, nil))
	return u
}

func TestAssignRole(t *testing.T) {
	ctx := context.Background()
	svc, mem, rec := setup(t)
	u := addUser(t, mem, "alice", "t1")
	role, err := svc.CreateRole(ctx, RoleInput{TenantID: "t1", Name: "EDITOR"})
	require.NoError(t, err)

	admin := audit.Actor{ID: "a1", Username: "root", IP: "10.0.0.1", TenantID: "t1"}
	assigned, err := svc.AssignRole(ctx, u.ID, role.ID, admin)
	require.NoError(t, err)
	assert.True(t, assigned)

	row, ok := mem.UserRoleRow(u.ID, role.ID)
	require.True(t, ok)
	assert.Equal(t, "root", row.AssignedBy)
	assert.Equal(t, t0, row.AssignedAt)
	assert.Equal(t, "t1", row.TenantID)

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, audit.ActionAssignRole, e.Action)
	assert.Equal(t, "root", e.ActorUsername)
	assert.Equal(t, u.ID, e.EntityID)
	assert.Equal(t, "role=EDITOR", e.Details)
	assert.NotEmpty(t, e.ID)

	// duplicado: no-op consistente, sin evento
	assigned, err = svc.AssignRole(ctx, u.ID, role.ID, admin)
	require.NoError(t, err)
	assert.False(t, assigned)
	assert.Len(t, rec.events, 1)

	roles, err := svc.UserRoles(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "EDITOR", roles[0].Name)
}

func TestAssignRole_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, mem, _ := setup(t)
	u := addUser(t, mem, "alice", "t1")
	role, err := svc.CreateRole(ctx, RoleInput{TenantID: "t2", Name: "OTHER_TENANT"})
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, "ghost", role.ID, audit.Actor{})
	var nf *autherr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Entity)

	_, err = svc.AssignRole(ctx, u.ID, "ghost", audit.Actor{})
	assert.ErrorIs(t, err, autherr.ErrRoleNotFound)

	_, err = svc.AssignRole(ctx, u.ID, role.ID, audit.Actor{})
	assert.ErrorIs(t, err, autherr.ErrRoleNotFound, "roles of another tenant are not assignable")
}

func TestAssignRole_AuditFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	ctx := context.Background()
	svc, mem, rec := setup(t)
	rec.err = errors.New("audit sink down")
	u := addUser(t, mem, "alice", "t1")
	roles, err := svc.EnsureRoles(ctx, RoleUser)
	require.NoError(t, err)

	assigned, err := svc.AssignRole(ctx, u.ID, roles[0].ID, audit.Actor{Username: "root"})
	require.NoError(t, err)
	assert.True(t, assigned)
	assert.Equal(t, 1, logs.FilterMessage("audit event not recorded").Len())
}

func TestRemoveRole(t *testing.T) {
	ctx := context.Background()
	svc, mem, rec := setup(t)
	u := addUser(t, mem, "alice", "t1")
	roles, err := svc.EnsureRoles(ctx, RoleAdmin)
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, u.ID, roles[0].ID, audit.Actor{Username: "root"})
	require.NoError(t, err)

	removed, err := svc.RemoveRole(ctx, u.ID, roles[0].ID, audit.Actor{Username: "root"})
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = svc.RemoveRole(ctx, u.ID, roles[0].ID, audit.Actor{Username: "root"})
	require.NoError(t, err)
	assert.False(t, removed)

	require.Len(t, rec.events, 2)
	assert.Equal(t, audit.ActionRemoveRole, rec.events[1].Action)
}

func TestNamesUniqueAcrossTenants(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	_, err := svc.CreateRole(ctx, RoleInput{TenantID: "t1", Name: "AUDITOR"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, RoleInput{TenantID: "t2", Name: "AUDITOR"})
	assert.ErrorIs(t, err, autherr.ErrDuplicateRoleName)

	_, err = svc.CreatePermission(ctx, PermissionInput{TenantID: "t1", Name: "reports:read"})
	require.NoError(t, err)
	_, err = svc.CreatePermission(ctx, PermissionInput{TenantID: "t2", Name: "reports:read"})
	assert.ErrorIs(t, err, autherr.ErrDuplicatePermissionName)
}

func TestFindScopedByTenant(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)
	_, err := svc.EnsureRoles(ctx, PredefinedRoles...)
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, RoleInput{TenantID: "t1", Name: "T1_ONLY"})
	require.NoError(t, err)
	_, err = svc.CreatePermission(ctx, PermissionInput{TenantID: "t1", Name: "t1:perm"})
	require.NoError(t, err)

	r, err := svc.FindRoleByName(ctx, "t1", "T1_ONLY")
	require.NoError(t, err)
	assert.Equal(t, "t1", r.TenantID)

	_, err = svc.FindRoleByName(ctx, "t2", "T1_ONLY")
	assert.ErrorIs(t, err, autherr.ErrRoleNotFound)

	r, err = svc.FindRoleByName(ctx, "t2", RoleUser)
	require.NoError(t, err)
	assert.True(t, r.Predefined)

	_, err = svc.FindPermissionByName(ctx, "t2", "t1:perm")
	assert.ErrorIs(t, err, autherr.ErrPermissionNotFound)
	_, err = svc.FindPermissionByName(ctx, "t1", "missing")
	assert.ErrorIs(t, err, autherr.ErrPermissionNotFound)

	// los globales se suman a los del tenant
	list, err := svc.FindAllRolesByTenant(ctx, "t1")
	require.NoError(t, err)
	names := make([]string, 0, len(list))
	for _, r := range list {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{RoleAdmin, RoleSuperAdmin, "T1_ONLY", RoleUser}, names)

	list, err = svc.FindAllRolesByTenant(ctx, "t2")
	require.NoError(t, err)
	assert.Len(t, list, len(PredefinedRoles))

	perms, err := svc.FindAllPermissionsByTenant(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestRolePermissions_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)
	role, err := svc.CreateRole(ctx, RoleInput{TenantID: "t1", Name: "EDITOR"})
	require.NoError(t, err)
	perm, err := svc.CreatePermission(ctx, PermissionInput{TenantID: "t1", Name: "posts:write"})
	require.NoError(t, err)

	added, err := svc.AddPermissionToRole(ctx, role.ID, perm.ID, audit.Actor{Username: "root"})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = svc.AddPermissionToRole(ctx, role.ID, perm.ID, audit.Actor{Username: "root"})
	require.NoError(t, err)
	assert.False(t, added)

	perms, err := svc.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 1)

	removed, err := svc.RemovePermissionFromRole(ctx, role.ID, perm.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = svc.RemovePermissionFromRole(ctx, role.ID, perm.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = svc.AddPermissionToRole(ctx, "ghost", perm.ID, audit.Actor{})
	assert.ErrorIs(t, err, autherr.ErrRoleNotFound)
	_, err = svc.AddPermissionToRole(ctx, role.ID, "ghost", audit.Actor{})
	assert.ErrorIs(t, err, autherr.ErrPermissionNotFound)
	_, err = svc.RemovePermissionFromRole(ctx, role.ID, "ghost")
	assert.ErrorIs(t, err, autherr.ErrPermissionNotFound)
}

func TestEnsureRoles_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)
	first, err := svc.EnsureRoles(ctx, PredefinedRoles...)
	require.NoError(t, err)
	second, err := svc.EnsureRoles(ctx, PredefinedRoles...)
	require.NoError(t, err)
	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.True(t, second[i].Predefined)
	}
}

func TestAssignRole_OtherTenantUserIsHidden(t *testing.T) {
	ctx := context.Background()
	svc, mem, rec := setup(t)
	target := addUser(t, mem, "bob", "tenant-b")
	roles, err := svc.EnsureRoles(ctx, RoleAdmin)
	require.NoError(t, err)

	adminA := audit.Actor{ID: "a1", Username: "admin-a", TenantID: "tenant-a", Roles: []string{RoleAdmin}}
	_, err = svc.AssignRole(ctx, target.ID, roles[0].ID, adminA)
	var nf *autherr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Entity)

	_, err = svc.RemoveRole(ctx, target.ID, roles[0].ID, adminA)
	require.ErrorAs(t, err, &nf)

	got, err := svc.UserRoles(ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, rec.events)

	// mismo tenant o actor de plataforma sí
	adminB := audit.Actor{ID: "b1", Username: "admin-b", TenantID: "tenant-b", Roles: []string{RoleAdmin}}
	assigned, err := svc.AssignRole(ctx, target.ID, roles[0].ID, adminB)
	require.NoError(t, err)
	assert.True(t, assigned)
	removed, err := svc.RemoveRole(ctx, target.ID, roles[0].ID, audit.Actor{ID: "p1", Roles: []string{RoleAdmin}})
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestAssignRole_SuperAdminOnlyBySuperAdmin(t *testing.T) {
	ctx := context.Background()
	svc, mem, _ := setup(t)
	u := addUser(t, mem, "carol", "t1")
	roles, err := svc.EnsureRoles(ctx, RoleSuperAdmin)
	require.NoError(t, err)
	super := roles[0]

	admin := audit.Actor{ID: u.ID, Username: "carol", TenantID: "t1", Roles: []string{"admin"}}
	_, err = svc.AssignRole(ctx, u.ID, super.ID, admin)
	assert.ErrorIs(t, err, autherr.ErrForbidden)

	root := audit.Actor{ID: "r1", Username: "root", TenantID: "t1", Roles: []string{"super_admin"}}
	assigned, err := svc.AssignRole(ctx, u.ID, super.ID, root)
	require.NoError(t, err)
	assert.True(t, assigned)

	_, err = svc.RemoveRole(ctx, u.ID, super.ID, admin)
	assert.ErrorIs(t, err, autherr.ErrForbidden)
	removed, err := svc.RemoveRole(ctx, u.ID, super.ID, root)
	require.NoError(t, err)
	assert.True(t, removed)

	// sin ID es una llamada interna
	assigned, err = svc.AssignRole(ctx, u.ID, super.ID, audit.Actor{})
	require.NoError(t, err)
	assert.True(t, assigned)
}

func TestAssignRole_LogsTargetSeparately(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	ctx := context.Background()
	svc, mem, _ := setup(t)
	u := addUser(t, mem, "dana", "t1")
	roles, err := svc.EnsureRoles(ctx, RoleUser)
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, u.ID, roles[0].ID, audit.Actor{ID: "a1", TenantID: "t1"})
	require.NoError(t, err)

	entries := logs.FilterMessage("role assigned").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, u.ID, fields["target_user_id"])
	assert.NotContains(t, fields, "user_id")
}
