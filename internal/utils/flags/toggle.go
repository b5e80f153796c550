package flags

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

const (
	toggleEnabledLiteralConstant  = "true"
	toggleDisabledLiteralConstant = "false"
	toggleValueTypeConstant       = "bool"
	toggleParseErrorTemplate      = "invalid toggle value %q; expected yes or no"
	toggleEnabledPlaceholder      = "<YES|no>"
	toggleDisabledPlaceholder     = "<yes|NO>"
	toggleUsageTemplate           = "`%s` %s"
	longFlagPrefixConstant        = "--"
	flagValueSeparatorConstant    = "="
	argumentTerminatorConstant    = "--"
)

var toggleLiterals = map[string]bool{
	"true": true, "yes": true, "on": true, "1": true, "y": true,
	"false": false, "no": false, "off": false, "0": false, "n": false,
}

// registeredToggles remembers toggle names across every command so the raw
// argument list can be normalized before Cobra resolves the subcommand.
var registeredToggles = &toggleRegistry{names: map[string]struct{}{}}

type toggleRegistry struct {
	mutex sync.RWMutex
	names map[string]struct{}
}

func (registry *toggleRegistry) add(name string) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.names[name] = struct{}{}
}

func (registry *toggleRegistry) contains(name string) bool {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	_, exists := registry.names[name]
	return exists
}

// AddToggleFlag registers a boolean flag accepting yes/no, on/off, and 1/0.
// A bare flag means yes.
func AddToggleFlag(flagSet *pflag.FlagSet, target *bool, name string, defaultValue bool, usage string) {
	if flagSet == nil || len(name) == 0 {
		return
	}
	if target != nil {
		*target = defaultValue
	}
	flagSet.Var(&yesNoValue{enabled: defaultValue, target: target}, name, toggleUsage(usage, defaultValue))
	flagSet.Lookup(name).NoOptDefVal = toggleEnabledLiteralConstant
	registeredToggles.add(name)
}

// NormalizeToggleArguments joins "--toggle no" into "--toggle=no" for
// registered toggles. Arguments after "--" are left untouched.
func NormalizeToggleArguments(arguments []string) []string {
	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		argument := arguments[index]
		if argument == argumentTerminatorConstant {
			return append(normalized, arguments[index:]...)
		}
		hasValue := index+1 < len(arguments) && isToggleLiteral(arguments[index+1])
		if hasValue && isBareToggle(argument) {
			normalized = append(normalized, argument+flagValueSeparatorConstant+arguments[index+1])
			index++
			continue
		}
		normalized = append(normalized, argument)
	}
	return normalized
}

type yesNoValue struct {
	enabled bool
	target  *bool
}

func (value *yesNoValue) Set(rawValue string) error {
	literal := strings.ToLower(strings.TrimSpace(rawValue))
	if len(literal) == 0 {
		literal = toggleEnabledLiteralConstant
	}
	enabled, known := toggleLiterals[literal]
	if !known {
		return fmt.Errorf(toggleParseErrorTemplate, rawValue)
	}
	value.enabled = enabled
	if value.target != nil {
		*value.target = enabled
	}
	return nil
}

func (value *yesNoValue) String() string {
	if value == nil || !value.enabled {
		return toggleDisabledLiteralConstant
	}
	return toggleEnabledLiteralConstant
}

func (value *yesNoValue) Type() string {
	return toggleValueTypeConstant
}

func toggleUsage(description string, defaultValue bool) string {
	placeholder := toggleDisabledPlaceholder
	if defaultValue {
		placeholder = toggleEnabledPlaceholder
	}
	return strings.TrimSpace(fmt.Sprintf(toggleUsageTemplate, placeholder, strings.TrimSpace(description)))
}

func isBareToggle(argument string) bool {
	if !strings.HasPrefix(argument, longFlagPrefixConstant) || strings.Contains(argument, flagValueSeparatorConstant) {
		return false
	}
	return registeredToggles.contains(strings.TrimPrefix(argument, longFlagPrefixConstant))
}

func isToggleLiteral(argument string) bool {
	_, known := toggleLiterals[strings.ToLower(strings.TrimSpace(argument))]
	return known
}
