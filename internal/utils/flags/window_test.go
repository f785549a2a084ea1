package flags_test

import (
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/dagwatch/internal/utils/flags"
)

func TestResolveAuditWindowPrecedence(testInstance *testing.T) {
	testCases := []struct {
		name       string
		arguments  []string
		configured flags.AuditWindowFlagValues
		expected   flags.AuditWindowFlagValues
	}{
		{
			name:     "flag_defaults",
			expected: flags.AuditWindowFlagValues{LookbackDays: 90},
		},
		{
			name:       "configured_values_replace_defaults",
			configured: flags.AuditWindowFlagValues{LookbackDays: 30, Prefix: "DL"},
			expected:   flags.AuditWindowFlagValues{LookbackDays: 30, Prefix: "DL"},
		},
		{
			name:       "explicit_flags_win",
			arguments:  []string{"-q", "7", "-p", "bi", "-s", "_daily", "-d", "2024-08-15"},
			configured: flags.AuditWindowFlagValues{LookbackDays: 30, Prefix: "DL", EndDate: "2024-01-01"},
			expected:   flags.AuditWindowFlagValues{EndDate: "2024-08-15", LookbackDays: 7, Prefix: "bi", Suffix: "_daily"},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			command := &cobra.Command{Use: "audit", RunE: func(*cobra.Command, []string) error { return nil }}
			values := flags.BindAuditWindowFlags(command, flags.AuditWindowFlagValues{LookbackDays: 90})
			require.NoError(testInstance, command.ParseFlags(testCase.arguments))

			resolved := flags.ResolveAuditWindow(command, *values, testCase.configured)
			require.Equal(testInstance, testCase.expected, resolved)
		})
	}
}

func TestTypedFlagAccessors(testInstance *testing.T) {
	command := &cobra.Command{Use: "audit"}
	command.Flags().Bool("verbose", false, "")
	command.Flags().Int("concurrency", 1, "")
	command.Flags().String("format", "csv", "")
	require.NoError(testInstance, command.ParseFlags([]string{"--verbose", "--concurrency", "4"}))

	verbose, verboseChanged, verboseError := flags.BoolFlag(command, "verbose")
	require.NoError(testInstance, verboseError)
	require.True(testInstance, verbose)
	require.True(testInstance, verboseChanged)

	concurrency, concurrencyChanged, concurrencyError := flags.IntFlag(command, "concurrency")
	require.NoError(testInstance, concurrencyError)
	require.Equal(testInstance, 4, concurrency)
	require.True(testInstance, concurrencyChanged)

	format, formatChanged, formatError := flags.StringFlag(command, "format")
	require.NoError(testInstance, formatError)
	require.Equal(testInstance, "csv", format)
	require.False(testInstance, formatChanged)

	_, _, missingError := flags.StringFlag(command, "missing")
	require.ErrorIs(testInstance, missingError, flags.ErrFlagNotDefined)
}

func TestFormatChoiceUsage(testInstance *testing.T) {
	require.Equal(testInstance, "Report format (one of: csv|json|yaml; default csv)", flags.FormatChoiceUsage("csv", []string{"csv", "json", "yaml"}, " Report format "))
	require.Equal(testInstance, "Report format", flags.FormatChoiceUsage("csv", nil, "Report format"))
}
