package schema

import "github.com/google/uuid"

// The access policy in backend/auth operates on these three views of a row:
// which users own it, which tenant it lives in, and whether it is shared
// with the whole tenant.

// A user profile is owned by the user themselves.
func (u *User) OwnerIds() []uuid.UUID { return []uuid.UUID{u.Id} }
func (u *User) TenantId() uuid.UUID {
	if u.SubsiteId != nil {
		return *u.SubsiteId
	}
	return uuid.Nil
}
func (u *User) SharedInTenant() bool { return false }

// Forms are visible to every member of their subsite.
func (f *Form) OwnerIds() []uuid.UUID { return []uuid.UUID{f.CreatorId} }
func (f *Form) TenantId() uuid.UUID   { return f.SubsiteId }
func (f *Form) SharedInTenant() bool  { return true }

func (r *FormResponse) OwnerIds() []uuid.UUID { return []uuid.UUID{r.UserId} }
func (r *FormResponse) TenantId() uuid.UUID {
	if r.Form != nil {
		return r.Form.SubsiteId
	}
	return uuid.Nil
}
func (r *FormResponse) SharedInTenant() bool { return false }

func (f *File) OwnerIds() []uuid.UUID { return []uuid.UUID{f.OwnerId} }
func (f *File) TenantId() uuid.UUID   { return f.SubsiteId }
func (f *File) SharedInTenant() bool  { return f.IsPublic }

func (m *Message) OwnerIds() []uuid.UUID {
	owners := []uuid.UUID{m.SenderId}
	if m.ReceiverId != nil {
		owners = append(owners, *m.ReceiverId)
	}
	return owners
}
func (m *Message) TenantId() uuid.UUID  { return m.SubsiteId }
func (m *Message) SharedInTenant() bool { return m.IsGlobal }

func (t *Ticket) OwnerIds() []uuid.UUID {
	owners := []uuid.UUID{t.CreatorId}
	if t.AssignedTo != nil {
		owners = append(owners, *t.AssignedTo)
	}
	return owners
}
func (t *Ticket) TenantId() uuid.UUID  { return t.SubsiteId }
func (t *Ticket) SharedInTenant() bool { return false }
