package flags

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const boolFlagParseErrorTemplate = "unable to parse flag %q: %w"

// ErrFlagNotDefined indicates that the requested flag is not present on the command.
var ErrFlagNotDefined = errors.New("flag not defined")

func BoolFlag(command *cobra.Command, name string) (bool, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return false, false, ErrFlagNotDefined
	}
	value, err := flagSet.GetBool(name)
	if err == nil {
		return value, flag.Changed, nil
	}

	if flag.Value == nil {
		return false, false, err
	}

	parsedValue, parseError := strconv.ParseBool(strings.TrimSpace(flag.Value.String()))
	if parseError != nil {
		return false, false, fmt.Errorf(boolFlagParseErrorTemplate, name, parseError)
	}

	return parsedValue, flag.Changed, nil
}

func StringFlag(command *cobra.Command, name string) (string, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return "", false, ErrFlagNotDefined
	}
	value, err := flagSet.GetString(name)
	if err != nil {
		return "", false, err
	}
	return value, flag.Changed, nil
}

func IntFlag(command *cobra.Command, name string) (int, bool, error) {
	flagSet, flag := locateFlag(command, name)
	if flag == nil {
		return 0, false, ErrFlagNotDefined
	}
	value, err := flagSet.GetInt(name)
	if err != nil {
		return 0, false, err
	}
	return value, flag.Changed, nil
}

// FormatChoiceUsage renders usage text listing the accepted values and the default.
func FormatChoiceUsage(defaultValue string, choices []string, usage string) string {
	trimmedUsage := strings.TrimSpace(usage)
	if len(choices) == 0 {
		return trimmedUsage
	}
	return fmt.Sprintf("%s (one of: %s; default %s)", trimmedUsage, strings.Join(choices, "|"), defaultValue)
}

func locateFlag(command *cobra.Command, name string) (*pflag.FlagSet, *pflag.Flag) {
	if command == nil {
		return nil, nil
	}

	candidateSets := []*pflag.FlagSet{
		command.Flags(),
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	if root := command.Root(); root != nil {
		candidateSets = append(candidateSets, root.PersistentFlags())
	}

	for _, set := range candidateSets {
		if set == nil {
			continue
		}
		if flag := set.Lookup(name); flag != nil {
			return set, flag
		}
	}

	return nil, nil
}
