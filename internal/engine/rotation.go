package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedPattern indicates pattern data is missing or carries implausible values.
var ErrMalformedPattern = errors.New("engine: malformed shift pattern")

var patternValidator = validator.New()

// Pattern is a cyclic work/rest rotation anchored at January 1 of the evaluated year.
// Every employee on a pattern shares the same work and rest days.
type Pattern struct {
	WorkDays     int `validate:"gte=1"`
	RestDays     int `validate:"gte=0"`
	SkipWeekends bool
	ShiftsPerDay int `validate:"gte=1"`
}

// CycleLength is WorkDays+RestDays.
func (p Pattern) CycleLength() int {
	return p.WorkDays + p.RestDays
}

// Validate checks the pattern fields.
func (p Pattern) Validate() error {
	if err := patternValidator.Struct(p); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPattern, describeValidation(err))
	}
	return nil
}

// IsWorkDay reports whether date falls in the work portion of the cycle.
func (p Pattern) IsWorkDay(date time.Time) bool {
	cycle := p.CycleLength()
	if cycle <= 0 {
		return false
	}
	offset := date.YearDay() - 1
	return offset%cycle < p.WorkDays
}

// IsWorkDay evaluates pattern for employee on date. The employee does not shift
// the cycle; it is accepted so callers can evaluate per employee.
func IsWorkDay(_ Employee, date time.Time, pattern Pattern) bool {
	return pattern.IsWorkDay(date)
}

type patternData struct {
	WorkDays     *int  `json:"work_days"`
	RestDays     *int  `json:"rest_days"`
	SkipWeekends *bool `json:"skip_weekends"`
}

// ParsePatternData decodes a shift_patterns.pattern_data document. work_days and
// rest_days are mandatory; skip_weekends defaults to false.
func ParsePatternData(raw []byte, shiftsPerDay int) (Pattern, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Pattern{}, fmt.Errorf("%w: pattern data missing", ErrMalformedPattern)
	}
	var data patternData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Pattern{}, fmt.Errorf("%w: %v", ErrMalformedPattern, err)
	}
	if data.WorkDays == nil {
		return Pattern{}, fmt.Errorf("%w: work_days required", ErrMalformedPattern)
	}
	if data.RestDays == nil {
		return Pattern{}, fmt.Errorf("%w: rest_days required", ErrMalformedPattern)
	}
	pattern := Pattern{
		WorkDays:     *data.WorkDays,
		RestDays:     *data.RestDays,
		ShiftsPerDay: shiftsPerDay,
	}
	if data.SkipWeekends != nil {
		pattern.SkipWeekends = *data.SkipWeekends
	}
	if err := pattern.Validate(); err != nil {
		return Pattern{}, err
	}
	return pattern, nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return strings.Join(parts, ", ")
}
