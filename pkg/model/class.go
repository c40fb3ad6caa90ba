package model

// Class is a loadout class. Its value selects which inventory slot holds the
// primary weapon.
type Class int

const (
	ClassRifleman Class = iota
	ClassHeavy
	ClassSniper
	ClassMedic
	ClassEngineer
)

func (c Class) String() string {
	switch c {
	case ClassRifleman:
		return "rifleman"
	case ClassHeavy:
		return "heavy"
	case ClassSniper:
		return "sniper"
	case ClassMedic:
		return "medic"
	case ClassEngineer:
		return "engineer"
	default:
		return "unknown"
	}
}

// ParseClass converts a class name to a Class. Unknown names map to rifleman.
func ParseClass(s string) Class {
	switch s {
	case "heavy":
		return ClassHeavy
	case "sniper":
		return ClassSniper
	case "medic":
		return ClassMedic
	case "engineer":
		return ClassEngineer
	default:
		return ClassRifleman
	}
}

// Valid returns true for the five known classes.
func (c Class) Valid() bool {
	return c >= ClassRifleman && c <= ClassEngineer
}

// PrimarySlot returns the slot bitmask of the class's primary weapon.
// Each class owns five consecutive slot bits.
func (c Class) PrimarySlot() int64 {
	if c < 0 || c > 12 {
		return 0
	}
	return 1 << (5 * uint(c))
}
