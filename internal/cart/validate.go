package cart

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/dansestudio/internal/pricing"
)

// Age bounds accepted for a student.
const (
	MinAge = 3
	MaxAge = 100
)

// Draft is the caller-supplied data for adding or updating a student.
type Draft struct {
	FirstName    string           `json:"firstName" validate:"required"`
	LastName     string           `json:"lastName" validate:"required"`
	Age          int              `json:"age" validate:"gte=3,lte=100"`
	Courses      []pricing.Course `json:"courses" validate:"min=1"`
	Schedules    []ScheduleRef    `json:"schedules"`
	SecondDancer *bool            `json:"isSecondDancerInFamily"`
	Override     *bool            `json:"familyDiscountOverride"`
}

func (d Draft) normalized() Draft {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	return d
}

// ValidationResult is the outcome of the pre-checkout gate.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func draftValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// draftMessages returns one message per violated field constraint.
func draftMessages(d Draft) []string {
	err := draftValidator().Struct(d.normalized())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, messageFor(fe))
	}
	return msgs
}

func messageFor(fe validator.FieldError) string {
	switch fe.Field() {
	case "FirstName":
		return "Fornavn er påkrevd"
	case "LastName":
		return "Etternavn er påkrevd"
	case "Age":
		return fmt.Sprintf("Alder må være mellom %d og %d år", MinAge, MaxAge)
	case "Courses":
		return "Velg minst ett kurs"
	default:
		return fmt.Sprintf("%s er ugyldig", fe.Field())
	}
}

func draftOf(it Item) Draft {
	return Draft{
		FirstName: it.FirstName,
		LastName:  it.LastName,
		Age:       it.Age,
		Courses:   it.Courses,
		Schedules: it.Schedules,
	}
}

// validateItems checks every item and the cart-wide duplicate-name constraint.
func validateItems(items []Item) ValidationResult {
	var msgs []string
	for idx, it := range items {
		label := it.FullName()
		if label == "" {
			label = fmt.Sprintf("Elev %d", idx+1)
		}
		for _, msg := range draftMessages(draftOf(it)) {
			msgs = append(msgs, fmt.Sprintf("%s: %s", label, msg))
		}
	}
	seen := make(map[string]bool, len(items))
	reported := make(map[string]bool)
	for _, it := range items {
		key := nameKey(it.FirstName, it.LastName)
		if seen[key] && !reported[key] {
			msgs = append(msgs, fmt.Sprintf("Duplikate elevnavn: %s", it.FullName()))
			reported[key] = true
		}
		seen[key] = true
	}
	return ValidationResult{Valid: len(msgs) == 0, Errors: msgs}
}
