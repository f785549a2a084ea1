package audit

import (
	"fmt"
	"strings"
	"time"

	auditerrors "github.com/tyemirov/dagwatch/internal/errors"
)

const (
	// EndDateLayout is the accepted format of audit end dates.
	EndDateLayout = "2006-01-02"

	endDateSubjectConstant               = "end_date"
	lookbackDaysSubjectConstant          = "lookback_days"
	invalidEndDateTemplateConstant       = "invalid end date %q, expected YYYY-MM-DD"
	negativeLookbackDaysTemplateConstant = "lookback days must not be negative, got %d"
	lastSecondOfDayHourConstant          = 23
	lastSecondOfDayMinuteConstant        = 59
	lastSecondOfDaySecondConstant        = 59
)

// ParseEndDate parses a YYYY-MM-DD date as midnight UTC. A blank value yields the zero time.
func ParseEndDate(value string) (time.Time, error) {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return time.Time{}, nil
	}
	parsed, parseError := time.Parse(EndDateLayout, trimmedValue)
	if parseError != nil {
		return time.Time{}, auditerrors.WrapMessage(auditerrors.OperationConfigurationValidate, endDateSubjectConstant, auditerrors.ErrConfiguration, fmt.Sprintf(invalidEndDateTemplateConstant, trimmedValue))
	}
	return parsed, nil
}

// ResolveWindow spans from midnight UTC lookbackDays before the end date through the last second of the end date.
func ResolveWindow(endDate time.Time, lookbackDays int) (Window, error) {
	if lookbackDays < 0 {
		return Window{}, auditerrors.WrapMessage(auditerrors.OperationConfigurationValidate, lookbackDaysSubjectConstant, auditerrors.ErrConfiguration, fmt.Sprintf(negativeLookbackDaysTemplateConstant, lookbackDays))
	}

	year, month, day := endDate.UTC().Date()
	return Window{
		Start: time.Date(year, month, day-lookbackDays, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, month, day, lastSecondOfDayHourConstant, lastSecondOfDayMinuteConstant, lastSecondOfDaySecondConstant, 0, time.UTC),
	}, nil
}
