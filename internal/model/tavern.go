package model

const (
	// MaxTavernLevel is the highest level a tavern can reach.
	MaxTavernLevel = 20
	// ExperiencePerLevel scales the threshold: level N needs N*100 to level up.
	ExperiencePerLevel = 100
)

// Tavern is the shared workspace. CurrentExperience stays below
// LevelExperienceLimit after every gain.
type Tavern struct {
	Base
	Name                 string  `gorm:"not null;type:varchar(100)" json:"name"`
	Description          *string `gorm:"type:varchar(255)" json:"description,omitempty"`
	Capacity             int     `gorm:"not null" json:"capacity"`
	Level                int     `gorm:"not null;default:1" json:"level"`
	CurrentExperience    int     `gorm:"not null;default:0" json:"current_experience"`
	LevelExperienceLimit int     `gorm:"not null" json:"level_experience_limit"`
}

func (Tavern) TableName() string {
	return "taverns"
}

// ExperienceThreshold is the experience needed to leave level.
func ExperienceThreshold(level int) int {
	return level * ExperiencePerLevel
}

func NewTavern(name string, description *string, capacity int) (*Tavern, error) {
	t := &Tavern{
		Base:                 newBase(),
		Level:                1,
		LevelExperienceLimit: ExperienceThreshold(1),
	}
	if err := t.Rename(name); err != nil {
		return nil, err
	}
	if err := t.Describe(description); err != nil {
		return nil, err
	}
	if err := validateCapacity(capacity); err != nil {
		return nil, err
	}
	t.Capacity = capacity
	return t, nil
}

func (t *Tavern) Rename(name string) error {
	if err := checkRequired("tavern name", name, 3, 100); err != nil {
		return err
	}
	t.Name = name
	return nil
}

func (t *Tavern) Describe(description *string) error {
	description = normalizeOptional(description)
	if err := checkOptional("tavern description", description, 3, 255); err != nil {
		return err
	}
	t.Description = description
	return nil
}

func validateCapacity(capacity int) error {
	if capacity <= 0 {
		return Invalid("capacity must be greater than zero")
	}
	return nil
}

// ChangeCapacity rejects a capacity below the number of current members.
func (t *Tavern) ChangeCapacity(capacity int, memberCount int64) error {
	if err := validateCapacity(capacity); err != nil {
		return err
	}
	if int64(capacity) < memberCount {
		return Conflict("capacity %d is below the current member count %d", capacity, memberCount)
	}
	t.Capacity = capacity
	return nil
}

// CanAdmit fails when one more member would exceed capacity.
func (t *Tavern) CanAdmit(memberCount int64) error {
	if memberCount+1 > int64(t.Capacity) {
		return Conflict("tavern %q is full (%d/%d)", t.Name, memberCount, t.Capacity)
	}
	return nil
}

// GainExperience adds amount and performs at most one level-up per call, even
// when amount would span several thresholds. Experience resets to zero on
// level-up. At the level cap experience is held just below the threshold.
func (t *Tavern) GainExperience(amount int) (leveledUp bool, err error) {
	if amount <= 0 {
		return false, Invalid("experience gain must be positive")
	}
	t.CurrentExperience += amount
	if t.CurrentExperience < t.LevelExperienceLimit {
		return false, nil
	}
	if t.Level >= MaxTavernLevel {
		t.CurrentExperience = t.LevelExperienceLimit - 1
		return false, nil
	}
	if err := t.LevelUp(); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tavern) LevelUp() error {
	if t.Level+1 > MaxTavernLevel {
		return Conflict("tavern is already at the maximum level %d", MaxTavernLevel)
	}
	t.Level++
	t.CurrentExperience = 0
	t.LevelExperienceLimit = ExperienceThreshold(t.Level)
	return nil
}
