package registry

// NamingRule identifies one broken Scaleway repository naming rule.
// Grounded on original_source/src/container_registry/scaleway_container_registry.rs
// check_repository_naming_rules.
type NamingRule string

const (
	RuleMinLengthNotReached           NamingRule = "MinLengthNotReached"
	RuleMaxLengthReached              NamingRule = "MaxLengthReached"
	RuleAlphaNumericDashesPeriodsOnly NamingRule = "AlphaNumericCharsDashesPeriodsOnly"
)

const (
	scalewayMinLength = 4
	scalewayMaxLength = 54
)

// CheckScalewayNamingRules returns the set of broken rules for name, or nil
// if name satisfies all of them. Scaleway repository names must be 4-54
// chars of [A-Za-z0-9.-].
func CheckScalewayNamingRules(name string) map[NamingRule]bool {
	broken := map[NamingRule]bool{}

	if len(name) < scalewayMinLength {
		broken[RuleMinLengthNotReached] = true
	}
	if len(name) > scalewayMaxLength {
		broken[RuleMaxLengthReached] = true
	}
	for _, r := range name {
		if !isAlphaNumericDashPeriod(r) {
			broken[RuleAlphaNumericDashesPeriodsOnly] = true
			break
		}
	}

	if len(broken) == 0 {
		return nil
	}
	return broken
}

func isAlphaNumericDashPeriod(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r == '-' || r == '.':
		return true
	default:
		return false
	}
}
