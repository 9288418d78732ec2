package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/carpschool/access-api/internal/domain"
	"github.com/carpschool/access-api/internal/infrastructure/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAccountStore struct{ mock.Mock }

func (m *mockAccountStore) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) AddRole(ctx context.Context, accountID string, tag domain.RoleTag) error {
	return m.Called(ctx, accountID, tag).Error(0)
}
func (m *mockAccountStore) RemoveRole(ctx context.Context, accountID string, tag domain.RoleTag) error {
	return m.Called(ctx, accountID, tag).Error(0)
}
func (m *mockAccountStore) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	return m.Called(ctx, accountID, updates).Error(0)
}

type mockInstitutionStore struct{ mock.Mock }

func (m *mockInstitutionStore) Get(ctx context.Context, institutionID string) (*domain.Institution, error) {
	args := m.Called(ctx, institutionID)
	if i, _ := args.Get(0).(*domain.Institution); i != nil {
		return i, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Publish(ctx context.Context, ev sns.AuditEvent) error {
	return m.Called(ctx, ev).Error(0)
}

// --- builder ---

func newService(as *mockAccountStore, is *mockInstitutionStore) Service {
	return NewService(ServiceDeps{AccountRepo: as, InstitutionRepo: is})
}

func globalAdmin(id string) *domain.Account {
	return &domain.Account{AccountID: id, Roles: []string{"system"}}
}

func institutionAdmin(id, inst string) *domain.Account {
	return &domain.Account{AccountID: id, InstitutionID: inst, Roles: []string{"admin." + inst}}
}

func plainAccount(id, inst string) *domain.Account {
	return &domain.Account{AccountID: id, InstitutionID: inst}
}

// --- PromoteInstitutionAdmin ---

func TestPromoteInstitutionAdmin_NoRoles_InsufficientScope(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(plainAccount("caller", "sfu"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)

	err := newService(as, nil).PromoteInstitutionAdmin(context.Background(), "caller", "target")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientScope))
	as.AssertNotCalled(t, "AddRole", mock.Anything, mock.Anything, mock.Anything)
}

func TestPromoteInstitutionAdmin_TargetWithoutInstitution(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", ""), nil)

	err := newService(as, nil).PromoteInstitutionAdmin(context.Background(), "caller", "target")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestPromoteInstitutionAdmin_GlobalCaller_GrantsTag(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)
	as.On("AddRole", mock.Anything, "target", domain.InstitutionAdminTag("sfu")).Return(nil)

	err := newService(as, nil).PromoteInstitutionAdmin(context.Background(), "caller", "target")

	require.NoError(t, err)
	as.AssertExpectations(t)
}

func TestPromoteInstitutionAdmin_CrossInstitutionCaller_Denied(t *testing.T) {
	as := &mockAccountStore{}
	// Caller administers ubc but the target belongs to sfu.
	as.On("Get", mock.Anything, "caller").Return(institutionAdmin("caller", "ubc"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)

	err := newService(as, nil).PromoteInstitutionAdmin(context.Background(), "caller", "target")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientScope))
}

func TestPromoteInstitutionAdmin_SameInstitutionAdmin_Allowed(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(institutionAdmin("caller", "sfu"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)
	as.On("AddRole", mock.Anything, "target", domain.InstitutionAdminTag("sfu")).Return(nil)

	err := newService(as, nil).PromoteInstitutionAdmin(context.Background(), "caller", "target")

	require.NoError(t, err)
	as.AssertExpectations(t)
}

func TestPromoteInstitutionAdmin_AlreadyAdmin_Idempotent(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(institutionAdmin("target", "sfu"), nil)
	// Set-add of an existing tag is a storage-level no-op and must succeed.
	as.On("AddRole", mock.Anything, "target", domain.InstitutionAdminTag("sfu")).Return(nil)

	err := newService(as, nil).PromoteInstitutionAdmin(context.Background(), "caller", "target")

	require.NoError(t, err)
}

// --- DemoteInstitutionAdmin ---

func TestDemoteInstitutionAdmin_RemovesTag(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(institutionAdmin("caller", "sfu"), nil)
	as.On("Get", mock.Anything, "target").Return(institutionAdmin("target", "sfu"), nil)
	as.On("RemoveRole", mock.Anything, "target", domain.InstitutionAdminTag("sfu")).Return(nil)

	err := newService(as, nil).DemoteInstitutionAdmin(context.Background(), "caller", "target")

	require.NoError(t, err)
	as.AssertExpectations(t)
}

// --- PromoteGlobalAdmin / DemoteGlobalAdmin ---

func TestPromoteGlobalAdmin_InstitutionAdminCaller_Denied(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(institutionAdmin("caller", "sfu"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)

	err := newService(as, nil).PromoteGlobalAdmin(context.Background(), "caller", "target")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientScope))
	as.AssertNotCalled(t, "AddRole", mock.Anything, mock.Anything, mock.Anything)
}

func TestPromoteGlobalAdmin_GlobalCaller_Allowed(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)
	as.On("AddRole", mock.Anything, "target", domain.GlobalAdminTag()).Return(nil)

	err := newService(as, nil).PromoteGlobalAdmin(context.Background(), "caller", "target")

	require.NoError(t, err)
	as.AssertExpectations(t)
}

func TestDemoteGlobalAdmin_Self_SelfLockout(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)

	err := newService(as, nil).DemoteGlobalAdmin(context.Background(), "caller", "caller")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSelfLockout))
	as.AssertNotCalled(t, "RemoveRole", mock.Anything, mock.Anything, mock.Anything)
}

func TestDemoteGlobalAdmin_OtherTarget_Allowed(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(globalAdmin("target"), nil)
	as.On("RemoveRole", mock.Anything, "target", domain.GlobalAdminTag()).Return(nil)

	err := newService(as, nil).DemoteGlobalAdmin(context.Background(), "caller", "target")

	require.NoError(t, err)
	as.AssertExpectations(t)
}

// --- AssignAccountToInstitution ---

func TestAssignAccountToInstitution_GlobalCaller_SetsInstitution(t *testing.T) {
	as := &mockAccountStore{}
	is := &mockInstitutionStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", ""), nil)
	is.On("Get", mock.Anything, "sfu").Return(&domain.Institution{InstitutionID: "sfu", Active: true}, nil)
	as.On("Update", mock.Anything, "target", map[string]interface{}{"institution_id": "sfu"}).Return(nil)

	err := newService(as, is).AssignAccountToInstitution(context.Background(), "caller", "target", "sfu")

	require.NoError(t, err)
	as.AssertExpectations(t)
}

func TestAssignAccountToInstitution_SameInstitution_NoOp(t *testing.T) {
	as := &mockAccountStore{}
	is := &mockInstitutionStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)
	is.On("Get", mock.Anything, "sfu").Return(&domain.Institution{InstitutionID: "sfu", Active: true}, nil)

	err := newService(as, is).AssignAccountToInstitution(context.Background(), "caller", "target", "sfu")

	require.NoError(t, err)
	as.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestAssignAccountToInstitution_InactiveInstitution_Rejected(t *testing.T) {
	as := &mockAccountStore{}
	is := &mockInstitutionStore{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", ""), nil)
	is.On("Get", mock.Anything, "sfu").Return(&domain.Institution{InstitutionID: "sfu", Active: false}, nil)

	err := newService(as, is).AssignAccountToInstitution(context.Background(), "caller", "target", "sfu")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestAssignAccountToInstitution_NonGlobalCaller_Denied(t *testing.T) {
	as := &mockAccountStore{}
	as.On("Get", mock.Anything, "caller").Return(institutionAdmin("caller", "sfu"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", ""), nil)

	err := newService(as, nil).AssignAccountToInstitution(context.Background(), "caller", "target", "sfu")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientScope))
}

func TestPromoteInstitutionAdmin_PublishesAuditEvent(t *testing.T) {
	as := &mockAccountStore{}
	audit := &mockAudit{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)
	as.On("AddRole", mock.Anything, "target", domain.InstitutionAdminTag("sfu")).Return(nil)
	audit.On("Publish", mock.Anything, mock.MatchedBy(func(ev sns.AuditEvent) bool {
		return ev.Action == "admin.promote_institution_admin" &&
			ev.ActorAccountID == "caller" && ev.TargetAccountID == "target" &&
			ev.InstitutionID == "sfu"
	})).Return(nil)

	svc := NewService(ServiceDeps{AccountRepo: as, Audit: audit})
	err := svc.PromoteInstitutionAdmin(context.Background(), "caller", "target")

	require.NoError(t, err)
	audit.AssertExpectations(t)
}

func TestPromoteInstitutionAdmin_AuditFailure_DoesNotFailMutation(t *testing.T) {
	as := &mockAccountStore{}
	audit := &mockAudit{}
	as.On("Get", mock.Anything, "caller").Return(globalAdmin("caller"), nil)
	as.On("Get", mock.Anything, "target").Return(plainAccount("target", "sfu"), nil)
	as.On("AddRole", mock.Anything, "target", domain.InstitutionAdminTag("sfu")).Return(nil)
	audit.On("Publish", mock.Anything, mock.Anything).Return(errors.New("topic unavailable"))

	svc := NewService(ServiceDeps{AccountRepo: as, Audit: audit})
	err := svc.PromoteInstitutionAdmin(context.Background(), "caller", "target")

	require.NoError(t, err)
}

func TestLoadPair_MissingCaller_Unauthenticated(t *testing.T) {
	err := newService(&mockAccountStore{}, nil).PromoteInstitutionAdmin(context.Background(), "", "target")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
}
