package lifecycle

import (
	"fmt"
	"regexp"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// compiledPolicy pairs a policy with its compiled patterns so evaluation
// never recompiles per object.
type compiledPolicy struct {
	policy           interfaces.LifecyclePolicy
	containerPattern *regexp.Regexp
	filePattern      *regexp.Regexp
}

// ValidatePolicy checks a policy at registration time. A policy is invalid
// when its name is empty, either pattern fails to compile, a rule has no
// positive threshold, or it is enabled with an empty rule list. Invalid
// policies are rejected with interfaces.ErrPolicyInvalid and never evaluated.
func ValidatePolicy(policy interfaces.LifecyclePolicy) error {
	_, err := compilePolicy(policy)
	return err
}

func compilePolicy(policy interfaces.LifecyclePolicy) (compiledPolicy, error) {
	if policy.Name == "" {
		return compiledPolicy{}, fmt.Errorf("%w: empty policy name", interfaces.ErrPolicyInvalid)
	}

	containerPattern, err := regexp.Compile(policy.ContainerPattern)
	if err != nil {
		return compiledPolicy{}, fmt.Errorf("%w: container pattern: %v", interfaces.ErrPolicyInvalid, err)
	}

	var filePattern *regexp.Regexp
	if policy.FilePattern != "" {
		filePattern, err = regexp.Compile(policy.FilePattern)
		if err != nil {
			return compiledPolicy{}, fmt.Errorf("%w: file pattern: %v", interfaces.ErrPolicyInvalid, err)
		}
	}

	for i, rule := range policy.Rules {
		if rule.DaysAfterCreation < 0 || rule.DaysAfterModification < 0 {
			return compiledPolicy{}, fmt.Errorf("%w: rule %d has a negative threshold", interfaces.ErrPolicyInvalid, i)
		}
		if rule.DaysAfterCreation == 0 && rule.DaysAfterModification == 0 {
			return compiledPolicy{}, fmt.Errorf("%w: rule %d has no age threshold", interfaces.ErrPolicyInvalid, i)
		}
	}

	if policy.Enabled && len(policy.Rules) == 0 {
		return compiledPolicy{}, fmt.Errorf("%w: enabled policy %q has no rules", interfaces.ErrPolicyInvalid, policy.Name)
	}

	return compiledPolicy{
		policy:           policy,
		containerPattern: containerPattern,
		filePattern:      filePattern,
	}, nil
}

// matches reports whether an object falls under this policy.
func (cp compiledPolicy) matches(container, name string) bool {
	if !cp.containerPattern.MatchString(container) {
		return false
	}
	if cp.filePattern != nil && !cp.filePattern.MatchString(name) {
		return false
	}
	return true
}
