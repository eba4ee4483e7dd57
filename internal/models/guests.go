package models

// AgeGroup is a pricing bucket for guests.
type AgeGroup string

const (
	AgeAdult   AgeGroup = "adult"
	AgeStudent AgeGroup = "student"
	AgeChild   AgeGroup = "child"
	AgeInfant  AgeGroup = "infant"
	AgeBaby    AgeGroup = "baby"
)

// AgeGroups is the canonical bucket order.
var AgeGroups = []AgeGroup{AgeAdult, AgeStudent, AgeChild, AgeInfant, AgeBaby}

func (g AgeGroup) Valid() bool {
	switch g {
	case AgeAdult, AgeStudent, AgeChild, AgeInfant, AgeBaby:
		return true
	}
	return false
}

// GuestCount holds head counts per age group. Leaders are a subset of adults.
type GuestCount struct {
	Adult   int `json:"adult" validate:"min=0"`
	Student int `json:"student" validate:"min=0"`
	Child   int `json:"child" validate:"min=0"`
	Infant  int `json:"infant" validate:"min=0"`
	Baby    int `json:"baby" validate:"min=0"`
	Leader  int `json:"leader" validate:"min=0,ltefield=Adult"`
}

// Total counts every guest once. Leaders are already counted as adults.
func (g GuestCount) Total() int {
	return g.Adult + g.Student + g.Child + g.Infant + g.Baby
}

// Count returns the head count of one age group.
func (g GuestCount) Count(group AgeGroup) int {
	switch group {
	case AgeAdult:
		return g.Adult
	case AgeStudent:
		return g.Student
	case AgeChild:
		return g.Child
	case AgeInfant:
		return g.Infant
	case AgeBaby:
		return g.Baby
	}
	return 0
}

// IsZero reports whether no guests are recorded.
func (g GuestCount) IsZero() bool {
	return g.Total() == 0
}
