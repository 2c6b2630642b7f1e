package model

import "time"

// ScheduleGrace tolerates clock skew between a client choosing a time and the
// server validating it.
const ScheduleGrace = 5 * time.Minute

// GameDay is a scheduled session of a tavern. IsConcluded is terminal.
type GameDay struct {
	Base
	TavernID    string    `gorm:"not null;type:varchar(64);index" json:"tavern_id"`
	ScheduledAt time.Time `gorm:"not null" json:"scheduled_at"`
	Notes       *string   `gorm:"type:varchar(1000)" json:"notes,omitempty"`
	IsConcluded bool      `gorm:"not null;default:false" json:"is_concluded"`
}

func (GameDay) TableName() string {
	return "game_days"
}

func NewGameDay(tavernID string, scheduledAt time.Time, notes *string, now time.Time) (*GameDay, error) {
	if tavernID == "" {
		return nil, Invalid("game day needs a tavern")
	}
	g := &GameDay{Base: newBase(), TavernID: tavernID}
	if err := g.setSchedule(scheduledAt, notes, now); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GameDay) setSchedule(scheduledAt time.Time, notes *string, now time.Time) error {
	if scheduledAt.IsZero() {
		return Invalid("scheduled date is required")
	}
	if scheduledAt.Before(now.Add(-ScheduleGrace)) {
		return Invalid("game day cannot be scheduled in the past")
	}
	notes = normalizeOptional(notes)
	if err := checkOptional("notes", notes, 1, 1000); err != nil {
		return err
	}
	g.ScheduledAt = scheduledAt.UTC()
	g.Notes = notes
	return nil
}

func (g *GameDay) Reschedule(scheduledAt time.Time, notes *string, now time.Time) error {
	if g.IsConcluded {
		return Conflict("game day is already concluded")
	}
	return g.setSchedule(scheduledAt, notes, now)
}

func (g *GameDay) Conclude() error {
	if g.IsConcluded {
		return Conflict("game day is already concluded")
	}
	g.IsConcluded = true
	return nil
}
