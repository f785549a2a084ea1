package audit_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/dagwatch/internal/audit"
)

func TestCommandConfigurationSanitize(testInstance *testing.T) {
	testCases := []struct {
		name          string
		configuration audit.CommandConfiguration
		expected      audit.CommandConfiguration
	}{
		{
			name:          "defaults_preserved",
			configuration: audit.DefaultCommandConfiguration(),
			expected:      audit.CommandConfiguration{LookbackDays: 90, Format: "csv", Concurrency: 1},
		},
		{
			name: "whitespace_trimmed_and_format_lowered",
			configuration: audit.CommandConfiguration{
				EndDate:         " 2024-08-15 ",
				LookbackDays:    30,
				Prefix:          " DL ",
				Suffix:          "prd  ",
				Format:          " JSON ",
				Concurrency:     4,
				HistoryDatabase: " /var/lib/dagwatch/history.db ",
			},
			expected: audit.CommandConfiguration{
				EndDate:         "2024-08-15",
				LookbackDays:    30,
				Prefix:          "DL",
				Suffix:          "prd",
				Format:          "json",
				Concurrency:     4,
				HistoryDatabase: "/var/lib/dagwatch/history.db",
			},
		},
		{
			name:          "invalid_numbers_reset",
			configuration: audit.CommandConfiguration{LookbackDays: -3, Concurrency: 0},
			expected:      audit.CommandConfiguration{LookbackDays: 90, Format: "csv", Concurrency: 1},
		},
		{
			name:          "zero_lookback_kept",
			configuration: audit.CommandConfiguration{LookbackDays: 0, Format: "yaml", Concurrency: 2},
			expected:      audit.CommandConfiguration{LookbackDays: 0, Format: "yaml", Concurrency: 2},
		},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, testCase.configuration.Sanitize())
		})
	}
}
