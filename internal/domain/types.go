package domain

// ActivityType tags an activity category. The predefined constants below are
// always available; user-defined types are arbitrary strings sharing the same
// lookup tables with fallback defaults.
type ActivityType string

const (
	TypeWalking    ActivityType = "walking"
	TypeRunning    ActivityType = "running"
	TypeStanding   ActivityType = "standing"
	TypeFitness    ActivityType = "fitness"
	TypeCycling    ActivityType = "cycling"
	TypeSwimming   ActivityType = "swimming"
	TypeDriving    ActivityType = "driving"
	TypeSitting    ActivityType = "sitting"
	TypeYoga       ActivityType = "yoga"
	TypeGym        ActivityType = "gym"
	TypeDogWalking ActivityType = "dog-walking"
	TypeSleeping   ActivityType = "sleeping"
	TypeTexting    ActivityType = "texting"
	TypeStudying   ActivityType = "studying"
	TypeUnknown    ActivityType = "unknown"
)

// PredefinedTypes lists the built-in activity categories in display order.
var PredefinedTypes = []ActivityType{
	TypeWalking, TypeRunning, TypeStanding, TypeFitness, TypeCycling,
	TypeSwimming, TypeDriving, TypeSitting, TypeYoga, TypeGym,
	TypeDogWalking, TypeSleeping, TypeTexting, TypeStudying, TypeUnknown,
}

// stepBearingTypes are the categories for which step counting runs.
var stepBearingTypes = map[ActivityType]struct{}{
	TypeWalking:    {},
	TypeRunning:    {},
	TypeDogWalking: {},
}

// StepBearing reports whether step counting applies to the activity type.
func (t ActivityType) StepBearing() bool {
	_, ok := stepBearingTypes[t]
	return ok
}

// metValues maps activity types to their metabolic equivalent factor.
var metValues = map[ActivityType]float64{
	TypeWalking:    3.5,
	TypeRunning:    7.5,
	TypeCycling:    6.0,
	TypeDriving:    1.5,
	TypeSitting:    1.0,
	TypeDogWalking: 3.0,
}

// MET returns the metabolic equivalent for the type, or 0 when unknown.
func (t ActivityType) MET() float64 {
	return metValues[t]
}

// caloriesPerStep maps step-bearing types to an estimated kcal per step.
var caloriesPerStep = map[ActivityType]float64{
	TypeWalking:    0.04,
	TypeRunning:    0.06,
	TypeDogWalking: 0.04,
}

// CaloriesPerStep returns the kcal-per-step estimate for the type, or 0.
func (t ActivityType) CaloriesPerStep() float64 {
	return caloriesPerStep[t]
}

// activityIcons maps types to icon names used by clients.
var activityIcons = map[ActivityType]string{
	TypeWalking:    "walking",
	TypeRunning:    "running",
	TypeStanding:   "user-alt",
	TypeFitness:    "dumbbell",
	TypeCycling:    "bicycle",
	TypeSwimming:   "swimmer",
	TypeDriving:    "car",
	TypeSitting:    "chair",
	TypeYoga:       "spa",
	TypeGym:        "dumbbell",
	TypeDogWalking: "dog",
	TypeSleeping:   "bed",
	TypeTexting:    "comment-alt",
	TypeStudying:   "book",
	TypeUnknown:    "question-circle",
}

// DefaultIcon is used for user-defined types without a mapping.
const DefaultIcon = "star"

// Icon returns the icon name for the type, falling back to DefaultIcon.
func (t ActivityType) Icon() string {
	if icon, ok := activityIcons[t]; ok {
		return icon
	}
	return DefaultIcon
}

// Daily targets surfaced by the statistics endpoints.
const (
	StepGoal    = 10000
	CalorieGoal = 400
)
