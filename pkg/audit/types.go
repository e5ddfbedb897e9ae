// Package audit classifies compliance checks run through an executor.Backend.
package audit

// Status is the compliance classification of one check.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
)

// Check is one declarative assertion: run Command, optionally expect
// ExpectedOutput somewhere in its stdout.
type Check struct {
	ID             string `yaml:"id" json:"id" bson:"id" validate:"required,ruleid"`
	Name           string `yaml:"name" json:"name" bson:"name" validate:"required"`
	Command        string `yaml:"command" json:"command" bson:"command" validate:"required"`
	ExpectedOutput string `yaml:"expected_output,omitempty" json:"expected_output,omitempty" bson:"expected_output,omitempty"`
	Remediation    string `yaml:"remediation,omitempty" json:"remediation,omitempty" bson:"remediation,omitempty"`
}

// Result is the classified outcome of one Check. Error is set iff Status is StatusError.
type Result struct {
	RuleID         string `json:"rule_id" bson:"rule_id"`
	Name           string `json:"name" bson:"name"`
	Status         Status `json:"status" bson:"status"`
	ActualOutput   string `json:"actual_output" bson:"actual_output"`
	ExpectedOutput string `json:"expected_output" bson:"expected_output"`
	Remediation    string `json:"remediation,omitempty" bson:"remediation,omitempty"`
	Error          string `json:"error,omitempty" bson:"error,omitempty"`
}

func (r Result) Passed() bool { return r.Status == StatusPass }
