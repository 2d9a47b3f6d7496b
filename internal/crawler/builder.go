package crawler

import "fmt"

// WorkflowBuilder assembles workflow step lists programmatically, for
// callers that construct configurations in code rather than loading them
// from a file.
type WorkflowBuilder struct {
	steps []WorkflowStep
}

// NewWorkflowBuilder returns an empty builder.
func NewWorkflowBuilder() *WorkflowBuilder {
	return &WorkflowBuilder{}
}

// ClickAndExtract adds a step that clicks clickSelector inside the item,
// waits for the resulting page and extracts the named fields from it.
func (b *WorkflowBuilder) ClickAndExtract(stepID, clickSelector string, extractFields []string, description string) *WorkflowBuilder {
	if description == "" {
		description = fmt.Sprintf("Click %s and extract data", clickSelector)
	}
	b.steps = append(b.steps, WorkflowStep{
		StepID:         stepID,
		Action:         ActionClick,
		TargetSelector: clickSelector,
		Description:    description,
		ExtractFields:  extractFields,
		WaitCondition:  WaitNetworkIdle,
	})
	return b
}

// NewTabExtraction adds a step that follows the item's link in a second
// page and extracts the named fields there.
func (b *WorkflowBuilder) NewTabExtraction(stepID, linkSelector string, extractFields []string, description string) *WorkflowBuilder {
	if description == "" {
		description = fmt.Sprintf("Open %s in new tab and extract", linkSelector)
	}
	b.steps = append(b.steps, WorkflowStep{
		StepID:         stepID,
		Action:         ActionOpenNewTab,
		TargetSelector: linkSelector,
		Description:    description,
		ExtractFields:  extractFields,
		WaitCondition:  WaitNetworkIdle,
	})
	return b
}

// ExtractOnly adds a step that extracts the named fields scoped under the
// item, without any navigation.
func (b *WorkflowBuilder) ExtractOnly(stepID, targetSelector string, extractFields []string, description string) *WorkflowBuilder {
	if description == "" {
		description = fmt.Sprintf("Extract from %s", targetSelector)
	}
	b.steps = append(b.steps, WorkflowStep{
		StepID:         stepID,
		Action:         ActionExtract,
		TargetSelector: targetSelector,
		Description:    description,
		ExtractFields:  extractFields,
		WaitCondition:  WaitNetworkIdle,
	})
	return b
}

// Build returns the assembled steps. The builder can keep being used
// afterwards; the returned slice is a copy.
func (b *WorkflowBuilder) Build() []WorkflowStep {
	steps := make([]WorkflowStep, len(b.steps))
	copy(steps, b.steps)
	return steps
}
