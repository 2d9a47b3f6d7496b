package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ElementType classifies what a selection is used for.
type ElementType string

const (
	ElementTypeDataField      ElementType = "data_field"
	ElementTypeItemsContainer ElementType = "items_container"
	ElementTypePagination     ElementType = "pagination"
	ElementTypeNavigation     ElementType = "navigation"
)

// ExtractionType defines how a value is read from a located element.
type ExtractionType string

const (
	ExtractText      ExtractionType = "text"
	ExtractHref      ExtractionType = "href"
	ExtractSrc       ExtractionType = "src"
	ExtractAttribute ExtractionType = "attribute"
)

// Action is the closed set of workflow step actions. Unknown actions are
// rejected when a configuration is decoded, not silently skipped at run time.
type Action string

const (
	ActionClick      Action = "click"
	ActionExtract    Action = "extract"
	ActionOpenNewTab Action = "open_new_tab"
)

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Action(s) {
	case ActionClick, ActionExtract, ActionOpenNewTab:
		*a = Action(s)
		return nil
	}
	return fmt.Errorf("unknown workflow action '%s'", s)
}

// WaitCondition defines what a click step waits for after activating its
// target.
type WaitCondition string

const (
	WaitNetworkIdle      WaitCondition = "networkidle"
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitForSelector      WaitCondition = "selector"
)

// ElementSelection describes one thing to locate on a page: what to call it,
// how to find it and how to read it. Selections are authored externally,
// before a run, and are read-only during a run.
type ElementSelection struct {
	Name           string         `json:"name" yaml:"name"`
	Selector       string         `json:"selector" yaml:"selector"`
	ElementType    ElementType    `json:"element_type" yaml:"element_type"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	ExtractionType ExtractionType `json:"extraction_type,omitempty" yaml:"extraction_type,omitempty"`
	AttributeName  string         `json:"attribute_name,omitempty" yaml:"attribute_name,omitempty"`
	// OriginalContent is the text the element carried at authoring time. The
	// pagination controller uses it to re-identify the control among all
	// elements matching the selector.
	OriginalContent string `json:"original_content,omitempty" yaml:"original_content,omitempty"`
	// VerificationAttributes are stable attributes captured at authoring time.
	VerificationAttributes map[string]string `json:"verification_attributes,omitempty" yaml:"verification_attributes,omitempty"`
	// PageURL is the url of the page the selection was authored on. Fields
	// authored on a detail page are skipped during listing-page extraction.
	PageURL string `json:"page_url,omitempty" yaml:"page_url,omitempty"`
}

// WorkflowStep is one configured post-extraction action executed per item.
type WorkflowStep struct {
	StepID         string        `json:"step_id" yaml:"step_id"`
	Action         Action        `json:"action" yaml:"action"`
	TargetSelector string        `json:"target_selector" yaml:"target_selector"`
	Description    string        `json:"description,omitempty" yaml:"description,omitempty"`
	ExtractFields  []string      `json:"extract_fields,omitempty" yaml:"extract_fields,omitempty"`
	WaitCondition  WaitCondition `json:"wait_condition,omitempty" yaml:"wait_condition,omitempty"`
	WaitSelector   string        `json:"wait_selector,omitempty" yaml:"wait_selector,omitempty"`
}

// DefaultDelayMS is the politeness delay between page advances when the
// configuration does not specify one.
const DefaultDelayMS = 1000

// Config describes a full crawl: what to select, which workflows to run per
// item and how to paginate. Workflow steps may reference field names that do
// not exist in the selections; such fields resolve to null at run time.
type Config struct {
	Name       string             `json:"name" yaml:"name"`
	BaseURL    string             `json:"base_url" yaml:"base_url"`
	Selections []ElementSelection `json:"selections" yaml:"selections"`
	Workflows  []WorkflowStep     `json:"workflows" yaml:"workflows"`
	Pagination *ElementSelection  `json:"pagination_config,omitempty" yaml:"pagination_config,omitempty"`
	MaxPages   int                `json:"max_pages,omitempty" yaml:"max_pages,omitempty"`
	DelayMS    int                `json:"delay_ms" yaml:"delay_ms"`
}

// LoadConfig reads a crawler configuration from a json file and applies the
// defaults for absent optional fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration from %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a crawler configuration from json.
func ParseConfig(data []byte) (*Config, error) {
	config := Config{
		DelayMS: DefaultDelayMS,
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Selections {
		if c.Selections[i].ExtractionType == "" {
			c.Selections[i].ExtractionType = ExtractText
		}
	}
	if c.Pagination != nil && c.Pagination.ExtractionType == "" {
		c.Pagination.ExtractionType = ExtractText
	}
	for i := range c.Workflows {
		if c.Workflows[i].WaitCondition == "" {
			c.Workflows[i].WaitCondition = WaitNetworkIdle
		}
	}
}

// Validate checks the configuration for the errors that make a run
// impossible. Everything it reports is fatal; recoverable inconsistencies
// like workflow fields without a matching selection are deliberately not
// checked here and soft-fail at run time instead.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url must not be empty")
	}
	names := map[string]bool{}
	containers := 0
	dataFields := 0
	for _, sel := range c.Selections {
		if names[sel.Name] {
			return fmt.Errorf("duplicate selection name '%s'", sel.Name)
		}
		names[sel.Name] = true
		if sel.Selector == "" {
			return fmt.Errorf("selection '%s' has an empty selector", sel.Name)
		}
		if sel.ExtractionType == ExtractAttribute && sel.AttributeName == "" {
			return fmt.Errorf("selection '%s' has extraction_type 'attribute' but no attribute_name", sel.Name)
		}
		switch sel.ElementType {
		case ElementTypeItemsContainer:
			containers++
		case ElementTypeDataField:
			dataFields++
		}
	}
	if containers > 1 {
		return errors.New("at most one items_container selection is allowed")
	}
	if containers == 0 && (dataFields > 0 || len(c.Workflows) > 0) {
		return errors.New("extraction is configured but no items_container selection exists")
	}
	stepIDs := map[string]bool{}
	for _, step := range c.Workflows {
		if stepIDs[step.StepID] {
			return fmt.Errorf("duplicate workflow step_id '%s'", step.StepID)
		}
		stepIDs[step.StepID] = true
	}
	if c.Pagination != nil && strings.TrimSpace(c.Pagination.Selector) == "" {
		return errors.New("pagination is configured with an empty selector")
	}
	return nil
}

// ItemsContainer returns the container selection or nil if none is
// configured.
func (c *Config) ItemsContainer() *ElementSelection {
	for i := range c.Selections {
		if c.Selections[i].ElementType == ElementTypeItemsContainer {
			return &c.Selections[i]
		}
	}
	return nil
}

// FindSelection returns the selection with the given name or nil.
func (c *Config) FindSelection(name string) *ElementSelection {
	for i := range c.Selections {
		if c.Selections[i].Name == name {
			return &c.Selections[i]
		}
	}
	return nil
}
