// Package flags provides helpers for binding standardized audit flags to Cobra commands.
package flags

import (
	"strings"

	"github.com/spf13/cobra"
)

const (
	// EndDateFlagName exposes the audit window end date flag name.
	EndDateFlagName = "end-date"
	// EndDateFlagShorthand provides the shorthand for the end date flag.
	EndDateFlagShorthand = "d"
	// EndDateFlagUsage describes the end date flag purpose.
	EndDateFlagUsage = "Last day of the audit window (YYYY-MM-DD, defaults to today in UTC)"
	// LookbackDaysFlagName exposes the lookback flag name.
	LookbackDaysFlagName = "days"
	// LookbackDaysFlagShorthand provides the shorthand for the lookback flag.
	LookbackDaysFlagShorthand = "q"
	// LookbackDaysFlagUsage describes the lookback flag purpose.
	LookbackDaysFlagUsage = "Number of days before the end date included in the audit window"
	// PrefixFlagName exposes the DAG prefix filter flag name.
	PrefixFlagName = "prefix"
	// PrefixFlagShorthand provides the shorthand for the prefix flag.
	PrefixFlagShorthand = "p"
	// PrefixFlagUsage describes the prefix flag purpose.
	PrefixFlagUsage = "Only audit DAGs whose id starts with this value (case-insensitive)"
	// SuffixFlagName exposes the DAG suffix filter flag name.
	SuffixFlagName = "suffix"
	// SuffixFlagShorthand provides the shorthand for the suffix flag.
	SuffixFlagShorthand = "s"
	// SuffixFlagUsage describes the suffix flag purpose.
	SuffixFlagUsage = "Only audit DAGs whose id ends with this value (case-insensitive)"
)

// AuditWindowFlagValues stores audit window flag values.
type AuditWindowFlagValues struct {
	EndDate      string
	LookbackDays int
	Prefix       string
	Suffix       string
}

// BindAuditWindowFlags attaches the audit window and name filter flags to the provided command.
func BindAuditWindowFlags(command *cobra.Command, defaults AuditWindowFlagValues) *AuditWindowFlagValues {
	values := defaults
	if command == nil {
		return &values
	}

	flagSet := command.Flags()
	flagSet.StringVarP(&values.EndDate, EndDateFlagName, EndDateFlagShorthand, defaults.EndDate, EndDateFlagUsage)
	flagSet.IntVarP(&values.LookbackDays, LookbackDaysFlagName, LookbackDaysFlagShorthand, defaults.LookbackDays, LookbackDaysFlagUsage)
	flagSet.StringVarP(&values.Prefix, PrefixFlagName, PrefixFlagShorthand, defaults.Prefix, PrefixFlagUsage)
	flagSet.StringVarP(&values.Suffix, SuffixFlagName, SuffixFlagShorthand, defaults.Suffix, SuffixFlagUsage)

	return &values
}

// ResolveAuditWindow merges configured defaults with flag values. Flags changed on the command line win;
// otherwise non-empty configured values replace the flag defaults.
func ResolveAuditWindow(command *cobra.Command, values AuditWindowFlagValues, configured AuditWindowFlagValues) AuditWindowFlagValues {
	window := AuditWindowFlagValues{
		EndDate:      strings.TrimSpace(values.EndDate),
		LookbackDays: values.LookbackDays,
		Prefix:       strings.TrimSpace(values.Prefix),
		Suffix:       strings.TrimSpace(values.Suffix),
	}

	if !flagChanged(command, EndDateFlagName) && len(strings.TrimSpace(configured.EndDate)) > 0 {
		window.EndDate = strings.TrimSpace(configured.EndDate)
	}
	if !flagChanged(command, LookbackDaysFlagName) && configured.LookbackDays > 0 {
		window.LookbackDays = configured.LookbackDays
	}
	if !flagChanged(command, PrefixFlagName) && len(strings.TrimSpace(configured.Prefix)) > 0 {
		window.Prefix = strings.TrimSpace(configured.Prefix)
	}
	if !flagChanged(command, SuffixFlagName) && len(strings.TrimSpace(configured.Suffix)) > 0 {
		window.Suffix = strings.TrimSpace(configured.Suffix)
	}

	return window
}

func flagChanged(command *cobra.Command, name string) bool {
	_, flag := locateFlag(command, name)
	return flag != nil && flag.Changed
}
