package schema

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleSubadmin Role = "subadmin"
	RoleUser     Role = "user"
)

func ValidRole(role Role) bool {
	return role == RoleAdmin || role == RoleSubadmin || role == RoleUser
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	Role     Role `gorm:"size:20;not null;default:'user'"`
	IsActive bool `gorm:"not null;default:true"`

	// Nil only for admins, subadmins and users always belong to a subsite.
	SubsiteId *uuid.UUID `gorm:"type:uuid"`
	Subsite   *Subsite   `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	LastLogin *time.Time
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsSubadmin() bool {
	return u.Role == RoleSubadmin
}

// SameSubsite reports whether the user belongs to the given subsite. Admins
// without a subsite never match, they are handled by the admin rule instead.
func (u *User) SameSubsite(subsiteId uuid.UUID) bool {
	return u.SubsiteId != nil && *u.SubsiteId == subsiteId
}

type Subsite struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"size:100;not null"`
	Slug        string `gorm:"unique;size:100;not null"`
	Description string

	AccessCode string `gorm:"size:128"`
	IsActive   bool   `gorm:"not null;default:true"`

	CreatedAt time.Time

	Users []User `gorm:"constraint:OnDelete:CASCADE"`
	Forms []Form `gorm:"constraint:OnDelete:CASCADE"`
}

type Form struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"size:200;not null"`
	Description string

	Structure datatypes.JSON `gorm:"not null"`
	IsActive  bool           `gorm:"not null;default:true"`

	CreatorId uuid.UUID `gorm:"type:uuid;not null"`
	Creator   *User     `gorm:"foreignKey:CreatorId"`

	SubsiteId uuid.UUID `gorm:"type:uuid;not null"`
	Subsite   *Subsite

	CreatedAt time.Time
	UpdatedAt time.Time

	Responses []FormResponse `gorm:"constraint:OnDelete:CASCADE"`
}

type FormResponse struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FormId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_form_user"`
	Form   *Form

	UserId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_form_user"`
	User   *User

	Answers datatypes.JSON `gorm:"not null"`

	IsDraft     bool `gorm:"not null;default:true"`
	SubmittedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Files []File `gorm:"foreignKey:FormResponseId"`
}

type File struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	OriginalName string `gorm:"size:255;not null"`
	StoredName   string `gorm:"unique;size:255;not null"`
	FileType     string `gorm:"size:50;not null"`
	FileSize     int64  `gorm:"not null"`
	Description  string

	IsPublic bool `gorm:"not null;default:false"`

	OwnerId uuid.UUID `gorm:"type:uuid;not null"`
	Owner   *User     `gorm:"foreignKey:OwnerId"`

	SubsiteId uuid.UUID `gorm:"type:uuid;not null"`
	Subsite   *Subsite

	FormResponseId *uuid.UUID `gorm:"type:uuid"`

	CreatedAt time.Time
}

type Message struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Subject string `gorm:"size:200"`
	Content string `gorm:"not null"`

	IsRead   bool `gorm:"not null;default:false"`
	IsGlobal bool `gorm:"not null;default:false"`

	SenderId uuid.UUID `gorm:"type:uuid;not null"`
	Sender   *User     `gorm:"foreignKey:SenderId"`

	// Nil for tenant broadcasts.
	ReceiverId *uuid.UUID `gorm:"type:uuid"`

	SubsiteId uuid.UUID `gorm:"type:uuid;not null"`
	Subsite   *Subsite

	ParentId *uuid.UUID `gorm:"type:uuid;index"`

	CreatedAt time.Time
}

const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketClosed     = "closed"
	TicketReopened   = "reopened"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Ticket struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"size:200;not null"`
	Description string `gorm:"not null"`

	Status   string `gorm:"size:20;not null;default:'open'"`
	Priority string `gorm:"size:20;not null;default:'normal'"`

	CreatorId uuid.UUID `gorm:"type:uuid;not null"`
	Creator   *User     `gorm:"foreignKey:CreatorId"`

	AssignedTo *uuid.UUID `gorm:"type:uuid"`

	SubsiteId uuid.UUID `gorm:"type:uuid;not null"`
	Subsite   *Subsite

	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Responses []TicketResponse `gorm:"constraint:OnDelete:CASCADE"`
}

type TicketResponse struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TicketId uuid.UUID `gorm:"type:uuid;not null;index"`

	UserId uuid.UUID `gorm:"type:uuid;not null"`
	User   *User     `gorm:"foreignKey:UserId"`

	Content string `gorm:"not null"`

	CreatedAt time.Time
}
