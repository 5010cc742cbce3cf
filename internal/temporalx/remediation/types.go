package remediation

const (
	WorkflowName      = "progression_remediation"
	ActivityRemediate = "progression_remediate"
)
