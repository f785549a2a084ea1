package audit_test

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/dagwatch/internal/audit"
)

func TestFilterDAGIdentifiersModes(testInstance *testing.T) {
	identifiers := []string{"DL_orders_PRD", "dl_billing_dev", "ml_training_prd", "dl_users_prd", "reporting"}

	testCases := []struct {
		name     string
		prefix   string
		suffix   string
		expected []string
	}{
		{name: "prefix_only", prefix: "dl", expected: []string{"DL_orders_PRD", "dl_billing_dev", "dl_users_prd"}},
		{name: "suffix_only", suffix: "PRD", expected: []string{"DL_orders_PRD", "ml_training_prd", "dl_users_prd"}},
		{name: "prefix_and_suffix", prefix: "Dl", suffix: "prd", expected: []string{"DL_orders_PRD", "dl_users_prd"}},
		{name: "neither", expected: identifiers},
		{name: "empty_predicates_ignored", prefix: "", suffix: "", expected: identifiers},
		{name: "leading_whitespace_significant", prefix: " dl", expected: []string{}},
		{name: "whitespace_only_prefix_constrains", prefix: "  ", expected: []string{}},
		{name: "trailing_whitespace_suffix_significant", suffix: "prd ", expected: []string{}},
		{name: "no_match", prefix: "etl", expected: []string{}},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			filtered := audit.FilterDAGIdentifiers(identifiers, testCase.prefix, testCase.suffix)
			require.Equal(testInstance, testCase.expected, filtered)
		})
	}
}

func TestFilterDAGIdentifiersDoesNotAliasInput(testInstance *testing.T) {
	identifiers := []string{"dl_orders_prd", "dl_users_prd"}
	filtered := audit.FilterDAGIdentifiers(identifiers, "", "")
	filtered[0] = "mutated"
	require.Equal(testInstance, "dl_orders_prd", identifiers[0])
}

func matchesPredicates(identifier string, prefix string, suffix string) bool {
	lowered := strings.ToLower(identifier)
	if len(prefix) > 0 && !strings.HasPrefix(lowered, strings.ToLower(prefix)) {
		return false
	}
	if len(suffix) > 0 && !strings.HasSuffix(lowered, strings.ToLower(suffix)) {
		return false
	}
	return true
}

func TestFilterDAGIdentifiersProperties(testInstance *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	identifierGenerator := gen.SliceOf(gen.AlphaString())
	predicateGenerator := gen.OneGenOf(gen.Const(""), gen.AlphaString().Map(func(value string) string {
		if len(value) > 2 {
			return value[:2]
		}
		return value
	}))

	properties.Property("kept identifiers are exactly those matching every present predicate, in input order", prop.ForAll(
		func(identifiers []string, prefix string, suffix string) bool {
			expected := make([]string, 0, len(identifiers))
			for _, identifier := range identifiers {
				if matchesPredicates(identifier, prefix, suffix) {
					expected = append(expected, identifier)
				}
			}
			return reflect.DeepEqual(expected, audit.FilterDAGIdentifiers(identifiers, prefix, suffix))
		},
		identifierGenerator, predicateGenerator, predicateGenerator,
	))

	properties.Property("predicate case does not matter", prop.ForAll(
		func(identifiers []string, prefix string, suffix string) bool {
			lowered := audit.FilterDAGIdentifiers(identifiers, strings.ToLower(prefix), strings.ToLower(suffix))
			raised := audit.FilterDAGIdentifiers(identifiers, strings.ToUpper(prefix), strings.ToUpper(suffix))
			return reflect.DeepEqual(lowered, raised)
		},
		identifierGenerator, predicateGenerator, predicateGenerator,
	))

	properties.Property("both predicates select the intersection of each alone", prop.ForAll(
		func(identifiers []string, prefix string, suffix string) bool {
			prefixOnly := audit.FilterDAGIdentifiers(identifiers, prefix, "")
			both := audit.FilterDAGIdentifiers(prefixOnly, "", suffix)
			return reflect.DeepEqual(both, audit.FilterDAGIdentifiers(identifiers, prefix, suffix))
		},
		identifierGenerator, predicateGenerator, predicateGenerator,
	))

	properties.Property("absent predicates keep every identifier", prop.ForAll(
		func(identifiers []string) bool {
			filtered := audit.FilterDAGIdentifiers(identifiers, "", "")
			return len(filtered) == len(identifiers) && (len(identifiers) == 0 || reflect.DeepEqual(identifiers, filtered))
		},
		identifierGenerator,
	))

	properties.TestingRun(testInstance)
}
