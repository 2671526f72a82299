package registry

import "testing"

func TestCheckScalewayNamingRulesValid(t *testing.T) {
	valid := []string{"abcd", "my-repo.name", "A1.B2-C3", "this-is-a-perfectly-fine-fifty-four-char-repo-name-abc"}
	for _, name := range valid {
		if got := CheckScalewayNamingRules(name); got != nil {
			t.Errorf("name %q: expected no broken rules, got %v", name, got)
		}
	}
}

func TestCheckScalewayNamingRulesTooShort(t *testing.T) {
	got := CheckScalewayNamingRules("a_d")
	if !got[RuleMinLengthNotReached] {
		t.Errorf("expected MinLengthNotReached for %q, got %v", "a_d", got)
	}
	if !got[RuleAlphaNumericDashesPeriodsOnly] {
		t.Errorf("expected AlphaNumericCharsDashesPeriodsOnly for %q, got %v", "a_d", got)
	}
	if got[RuleMaxLengthReached] {
		t.Errorf("did not expect MaxLengthReached for %q", "a_d")
	}
}

func TestCheckScalewayNamingRulesTooLong(t *testing.T) {
	name := ""
	for i := 0; i < 60; i++ {
		name += "a"
	}
	got := CheckScalewayNamingRules(name)
	if !got[RuleMaxLengthReached] {
		t.Errorf("expected MaxLengthReached, got %v", got)
	}
	if got[RuleMinLengthNotReached] || got[RuleAlphaNumericDashesPeriodsOnly] {
		t.Errorf("unexpected extra broken rules: %v", got)
	}
}

func TestCheckScalewayNamingRulesEmptyIsTooShort(t *testing.T) {
	got := CheckScalewayNamingRules("")
	if len(got) != 1 || !got[RuleMinLengthNotReached] {
		t.Errorf("expected only MinLengthNotReached for empty string, got %v", got)
	}
}
