// Package stats derives calories, body-mass metrics, and daily summaries
// from recorded activities.
package stats

import (
	"context"
	"time"

	"example.com/tracker/internal/domain"
)

// BMI category thresholds (WHO).
const (
	bmiUnderweight = 18.5
	bmiNormal      = 25.0
	bmiOverweight  = 30.0
)

// BMICategory labels a body-mass index.
type BMICategory string

// BMI categories.
const (
	CategoryUnderweight BMICategory = "underweight"
	CategoryNormal      BMICategory = "normal"
	CategoryOverweight  BMICategory = "overweight"
	CategoryObese       BMICategory = "obese"
)

// BMI computes the body-mass index from weight in kilograms and height in
// meters. Returns 0 for a non-positive height.
func BMI(weightKg, heightM float64) float64 {
	if heightM <= 0 {
		return 0
	}
	return weightKg / (heightM * heightM)
}

// Categorize maps a BMI value onto its category.
func Categorize(bmi float64) BMICategory {
	switch {
	case bmi < bmiUnderweight:
		return CategoryUnderweight
	case bmi < bmiNormal:
		return CategoryNormal
	case bmi < bmiOverweight:
		return CategoryOverweight
	default:
		return CategoryObese
	}
}

// Advice returns the one-line guidance shown next to a BMI category.
func Advice(category BMICategory) string {
	switch category {
	case CategoryUnderweight:
		return "Consider a nutrition plan to reach a healthy weight."
	case CategoryNormal:
		return "You're in a healthy range. Keep it up!"
	case CategoryOverweight:
		return "Regular activity will help you get back in range."
	default:
		return "Talk to a professional about a sustainable plan."
	}
}

// CaloriesFromSteps estimates the calories burned by counted steps, using
// the per-type burn rate.
func CaloriesFromSteps(activityType domain.ActivityType, steps int) float64 {
	if steps <= 0 {
		return 0
	}
	return float64(steps) * activityType.CaloriesPerStep()
}

// CaloriesFromDuration estimates the calories burned over a duration using
// the type's MET value: MET x weight (kg) x hours.
func CaloriesFromDuration(activityType domain.ActivityType, weightKg float64, duration time.Duration) float64 {
	if weightKg <= 0 || duration <= 0 {
		return 0
	}
	return activityType.MET() * weightKg * duration.Hours()
}

// DailySummary aggregates one day of completed activities.
type DailySummary struct {
	Date           time.Time     `json:"date"`
	Activities     int           `json:"activities"`
	Steps          int           `json:"steps"`
	Duration       time.Duration `json:"duration"`
	Calories       float64       `json:"calories"`
	StepGoalMet    bool          `json:"step_goal_met"`
	CalorieGoalMet bool          `json:"calorie_goal_met"`
}

// Service computes summaries over the activity repository.
type Service struct {
	activities domain.ActivityRepository
}

// NewService constructs a Service.
func NewService(activities domain.ActivityRepository) *Service {
	return &Service{activities: activities}
}

// Summarize aggregates the user's completed activities for the calendar day
// containing the given time, in that time's location. Open activities are
// excluded: their steps and paths are still accumulating.
func (s *Service) Summarize(ctx context.Context, userID string, day time.Time) (DailySummary, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	summary := DailySummary{Date: dayStart}

	var cursor *domain.Cursor
	for {
		page, next, err := s.activities.FindByUser(ctx, userID, cursor, 100)
		if err != nil {
			return DailySummary{}, err
		}
		for _, activity := range page {
			if activity.Open() {
				continue
			}
			if activity.StartTime.Before(dayStart) || !activity.StartTime.Before(dayEnd) {
				continue
			}
			summary.Activities++
			summary.Duration += activity.EndTime.Sub(activity.StartTime)
			if activity.Steps != nil {
				summary.Steps += *activity.Steps
				summary.Calories += CaloriesFromSteps(activity.Type, *activity.Steps)
			}
		}
		if next == nil {
			break
		}
		cursor = next
	}

	summary.StepGoalMet = summary.Steps >= domain.StepGoal
	summary.CalorieGoalMet = summary.Calories >= domain.CalorieGoal
	return summary, nil
}
