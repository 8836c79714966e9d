package auth_test

import (
	"fmt"
	"testing"

	"formsite/backend/auth"
	"formsite/backend/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testResource struct {
	owners []uuid.UUID
	tenant uuid.UUID
	shared bool
}

func (r testResource) OwnerIds() []uuid.UUID { return r.owners }
func (r testResource) TenantId() uuid.UUID   { return r.tenant }
func (r testResource) SharedInTenant() bool  { return r.shared }

func TestCanAccessRuleTable(t *testing.T) {
	actorId := uuid.New()
	otherId := uuid.New()
	tenantA := uuid.New()
	tenantB := uuid.New()

	actor := func(role schema.Role, subsite *uuid.UUID) schema.User {
		return schema.User{Id: actorId, Role: role, SubsiteId: subsite}
	}

	tests := []struct {
		name     string
		actor    schema.User
		resource testResource
		allowed  bool
	}{
		{
			name:     "admin accesses anything",
			actor:    actor(schema.RoleAdmin, nil),
			resource: testResource{owners: []uuid.UUID{otherId}, tenant: tenantB},
			allowed:  true,
		},
		{
			name:     "subadmin accesses own tenant",
			actor:    actor(schema.RoleSubadmin, &tenantA),
			resource: testResource{owners: []uuid.UUID{otherId}, tenant: tenantA},
			allowed:  true,
		},
		{
			name:     "subadmin denied other tenant",
			actor:    actor(schema.RoleSubadmin, &tenantA),
			resource: testResource{owners: []uuid.UUID{otherId}, tenant: tenantB},
			allowed:  false,
		},
		{
			name:     "owner accesses own resource",
			actor:    actor(schema.RoleUser, &tenantA),
			resource: testResource{owners: []uuid.UUID{actorId}, tenant: tenantA},
			allowed:  true,
		},
		{
			name:     "owner accesses own resource in other tenant",
			actor:    actor(schema.RoleUser, &tenantA),
			resource: testResource{owners: []uuid.UUID{actorId}, tenant: tenantB},
			allowed:  true,
		},
		{
			name:     "any listed owner counts",
			actor:    actor(schema.RoleUser, &tenantA),
			resource: testResource{owners: []uuid.UUID{otherId, actorId}, tenant: tenantA},
			allowed:  true,
		},
		{
			name:     "user denied unshared resource of another user",
			actor:    actor(schema.RoleUser, &tenantA),
			resource: testResource{owners: []uuid.UUID{otherId}, tenant: tenantA},
			allowed:  false,
		},
		{
			name:     "user accesses shared resource in own tenant",
			actor:    actor(schema.RoleUser, &tenantA),
			resource: testResource{owners: []uuid.UUID{otherId}, tenant: tenantA, shared: true},
			allowed:  true,
		},
		{
			name:     "user denied shared resource of other tenant",
			actor:    actor(schema.RoleUser, &tenantA),
			resource: testResource{owners: []uuid.UUID{otherId}, tenant: tenantB, shared: true},
			allowed:  false,
		},
		{
			name:     "user without tenant denied shared resource",
			actor:    actor(schema.RoleUser, nil),
			resource: testResource{owners: []uuid.UUID{otherId}, tenant: tenantA, shared: true},
			allowed:  false,
		},
		{
			name:     "subadmin without tenant falls through to owner rule",
			actor:    actor(schema.RoleSubadmin, nil),
			resource: testResource{owners: []uuid.UUID{actorId}, tenant: tenantA},
			allowed:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.allowed, auth.CanAccess(tc.actor, tc.resource))
		})
	}
}

func TestCanAccessExhaustiveDenials(t *testing.T) {
	// No combination of non-admin role, foreign ownership, and foreign
	// tenant grants access, shared or not.
	actorId := uuid.New()
	tenantA := uuid.New()
	tenantB := uuid.New()

	for _, role := range []schema.Role{schema.RoleSubadmin, schema.RoleUser} {
		for _, shared := range []bool{true, false} {
			actor := schema.User{Id: actorId, Role: role, SubsiteId: &tenantA}
			resource := testResource{owners: []uuid.UUID{uuid.New()}, tenant: tenantB, shared: shared}
			require.False(t, auth.CanAccess(actor, resource),
				fmt.Sprintf("role=%v shared=%v should be denied", role, shared))
		}
	}
}

func TestSchemaTypesImplementResource(t *testing.T) {
	userId := uuid.New()
	tenantId := uuid.New()

	form := schema.Form{CreatorId: userId, SubsiteId: tenantId}
	require.Equal(t, []uuid.UUID{userId}, form.OwnerIds())
	require.Equal(t, tenantId, form.TenantId())
	require.True(t, form.SharedInTenant())

	file := schema.File{OwnerId: userId, SubsiteId: tenantId, IsPublic: false}
	require.False(t, file.SharedInTenant())
	file.IsPublic = true
	require.True(t, file.SharedInTenant())

	receiverId := uuid.New()
	message := schema.Message{SenderId: userId, ReceiverId: &receiverId, SubsiteId: tenantId}
	require.ElementsMatch(t, []uuid.UUID{userId, receiverId}, message.OwnerIds())

	assigneeId := uuid.New()
	ticket := schema.Ticket{CreatorId: userId, AssignedTo: &assigneeId, SubsiteId: tenantId}
	require.ElementsMatch(t, []uuid.UUID{userId, assigneeId}, ticket.OwnerIds())
	require.False(t, ticket.SharedInTenant())
}
