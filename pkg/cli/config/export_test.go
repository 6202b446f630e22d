package config

// NewPolicyForTest creates a Policy config for testing purposes
func NewPolicyForTest(path string) *Policy {
	return &Policy{path: path}
}
