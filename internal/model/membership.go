package model

type MembershipStatus string

const (
	StatusPending MembershipStatus = "PENDING"
	StatusCommon  MembershipStatus = "COMMON"
	StatusAdmin   MembershipStatus = "ADMIN"
)

func (s MembershipStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCommon, StatusAdmin:
		return true
	}
	return false
}

// Membership binds a member to a tavern. IsDm and Status are independent:
// a DM can lose ADMIN status and keep the DM flag.
type Membership struct {
	Base
	MemberID string           `gorm:"not null;type:varchar(64);index" json:"member_id"`
	TavernID string           `gorm:"not null;type:varchar(64);index" json:"tavern_id"`
	IsDm     bool             `gorm:"not null;default:false" json:"is_dm"`
	Status   MembershipStatus `gorm:"not null;type:varchar(16)" json:"status"`
	IsActive bool             `gorm:"not null;default:true" json:"is_active"`
}

func (Membership) TableName() string {
	return "memberships"
}

func NewMembership(memberID, tavernID string, status MembershipStatus) (*Membership, error) {
	if memberID == "" || tavernID == "" {
		return nil, Invalid("membership needs a member and a tavern")
	}
	if !status.Valid() {
		return nil, Invalid("unknown membership status %q", status)
	}
	return &Membership{
		Base:     newBase(),
		MemberID: memberID,
		TavernID: tavernID,
		Status:   status,
		IsActive: true,
	}, nil
}

// NewOwnerMembership is the DM/ADMIN membership given to a tavern's creator.
func NewOwnerMembership(memberID, tavernID string) (*Membership, error) {
	m, err := NewMembership(memberID, tavernID, StatusAdmin)
	if err != nil {
		return nil, err
	}
	m.IsDm = true
	return m, nil
}

// Active reports whether the membership currently counts toward the tavern.
func (m *Membership) Active() bool {
	return m != nil && m.IsActive && !m.IsDeleted()
}
