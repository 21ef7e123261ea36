package schemas

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidSpec marks a configuration defect in an ActionSpec.
	ErrInvalidSpec = errors.New("invalid action spec")
	// ErrUnsupportedCondition is returned for a wait condition outside the
	// supported set. It always travels wrapped together with ErrInvalidSpec.
	ErrUnsupportedCondition = errors.New("unsupported wait condition")
)

// -- Defaults --

const (
	DefaultURL            = "https://tinyurl.com/nothing-borgir"
	DefaultTimeoutSeconds = 20
	DefaultJitterSeconds  = 2
	DefaultTableName      = "table"
	DefaultHTMLName       = "html"
	DefaultScreenshotName = "screenshot"
	DefaultPDFName        = "webpage_pdf"
	DefaultLogMessage     = "Log Msg For Action Not Attached."
	DefaultMaxLabels      = 2
	SubSelectorSeparator  = "|||"
)

// ActionSpec is one declarative browser interaction or extraction step.
// Values are treated as immutable once loaded; WithDefaults returns a copy.
type ActionSpec struct {
	Action ActionKind `yaml:"action" json:"action"`
	By     Strategy   `yaml:"by" json:"by,omitempty"`
	Value  string     `yaml:"value" json:"value,omitempty"`
	URL    string     `yaml:"url" json:"url,omitempty"`

	WaitUntil WaitCondition `yaml:"wait_until" json:"wait_until,omitempty"`
	WaitBy    Strategy      `yaml:"wait_by" json:"wait_by,omitempty"`
	WaitValue string        `yaml:"wait_value" json:"wait_value,omitempty"`
	Timeout   float64       `yaml:"timeout" json:"timeout,omitempty"`
	Time      *float64      `yaml:"time" json:"time,omitempty"`

	TableName      string `yaml:"table_name" json:"table_name,omitempty"`
	HTMLName       string `yaml:"html_name" json:"html_name,omitempty"`
	ScreenshotName string `yaml:"screenshot_name" json:"screenshot_name,omitempty"`
	PDFName        string `yaml:"pdf_name" json:"pdf_name,omitempty"`
	LogMessage     string `yaml:"log_message" json:"log_message,omitempty"`

	Multiple     bool     `yaml:"multiple" json:"multiple,omitempty"`
	Attribute    string   `yaml:"attribute" json:"attribute,omitempty"`
	ScrapeFields FieldMap `yaml:"scrape_fields" json:"scrape_fields,omitempty"`
	MaxLabels    int      `yaml:"max_labels" json:"max_labels,omitempty"`

	ExportFormat    string `yaml:"export_format" json:"export_format,omitempty"`
	ConsolidateSave bool   `yaml:"consolidate_save" json:"consolidate_save,omitempty"`

	Landscape       bool `yaml:"landscape" json:"landscape,omitempty"`
	PrintBackground bool `yaml:"print_background" json:"print_background,omitempty"`

	NewWindow     bool `yaml:"new_window" json:"new_window,omitempty"`
	OpenNewWindow bool `yaml:"open_new_window" json:"open_new_window,omitempty"`
	ReturnToBase  bool `yaml:"return_to_base" json:"return_to_base,omitempty"`

	URLs    []string  `yaml:"urls" json:"urls,omitempty"`
	BaseURL string    `yaml:"base_url" json:"base_url,omitempty"`
	Params  ParamList `yaml:"params" json:"params,omitempty"`
	Headers []string  `yaml:"headers" json:"headers,omitempty"`

	FollowUp []ActionSpec `yaml:"follow_up" json:"follow_up,omitempty"`
}

// WithDefaults returns a copy with every unset field given its default.
func (s ActionSpec) WithDefaults() ActionSpec {
	if s.Action == "" {
		s.Action = ActionNone
	}
	s.By = s.By.Normalize()
	if s.By == "" {
		s.By = StrategyCSS
	}
	if s.URL == "" {
		s.URL = DefaultURL
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeoutSeconds
	}
	if s.Time == nil {
		d := float64(DefaultJitterSeconds)
		s.Time = &d
	}
	s.WaitUntil = WaitCondition(strings.ToLower(strings.TrimSpace(string(s.WaitUntil))))
	s.WaitBy = s.WaitBy.Normalize()
	if s.WaitBy == "" {
		s.WaitBy = s.By
	}
	if s.WaitValue == "" {
		s.WaitValue = s.Value
	}
	if s.TableName == "" {
		s.TableName = DefaultTableName
	}
	if s.HTMLName == "" {
		s.HTMLName = DefaultHTMLName
	}
	if s.ScreenshotName == "" {
		s.ScreenshotName = DefaultScreenshotName
	}
	if s.PDFName == "" {
		s.PDFName = DefaultPDFName
	}
	if s.LogMessage == "" {
		s.LogMessage = DefaultLogMessage
	}
	if s.MaxLabels <= 0 {
		s.MaxLabels = DefaultMaxLabels
	}
	if s.OpenNewWindow {
		s.NewWindow = true
	}
	s.ExportFormat = strings.ToLower(strings.TrimSpace(s.ExportFormat))
	if s.ExportFormat == "excel" {
		// Spreadsheet exports are written as CSV.
		s.ExportFormat = "csv"
	}
	return s
}

// TimeoutDuration returns the wait bound of the action.
func (s ActionSpec) TimeoutDuration() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(s.Timeout * float64(time.Second))
}

// JitterCeiling returns the upper bound of the pre-action pause.
func (s ActionSpec) JitterCeiling() time.Duration {
	if s.Time == nil {
		return DefaultJitterSeconds * time.Second
	}
	if *s.Time <= 0 {
		return 0
	}
	return time.Duration(*s.Time * float64(time.Second))
}

// Validate reports configuration defects that make the action unrunnable.
func (s ActionSpec) Validate() error {
	if s.WaitUntil != "" && !s.WaitUntil.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidSpec, ErrUnsupportedCondition, s.WaitUntil)
	}
	if s.Action == ActionURLIterate {
		if len(s.URLs) == 0 && s.BaseURL == "" {
			return fmt.Errorf("%w: url-iterate requires urls or base_url", ErrInvalidSpec)
		}
		if len(s.Params) > 0 && s.BaseURL == "" {
			return fmt.Errorf("%w: params require base_url", ErrInvalidSpec)
		}
	}
	switch s.ExportFormat {
	case "", "html", "csv", "both":
	default:
		return fmt.Errorf("%w: unknown export format %q", ErrInvalidSpec, s.ExportFormat)
	}
	for i, f := range s.FollowUp {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("follow_up[%d]: %w", i, err)
		}
	}
	return nil
}

// Valid reports whether the condition is one of the supported tags.
func (c WaitCondition) Valid() bool {
	switch c {
	case WaitClickable, WaitVisible, WaitPresent, WaitInvisible, WaitAttached:
		return true
	default:
		return false
	}
}

// UnmarshalText normalises action tags while decoding.
func (k *ActionKind) UnmarshalText(text []byte) error {
	*k = ParseActionKind(string(text))
	return nil
}

// -- Scrape field map --

// Field is one named sub-selector of a scrape action.
type Field struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}

// FieldMap keeps scrape fields in declaration order.
type FieldMap []Field

// UnmarshalYAML decodes a mapping of name -> selector preserving key order.
func (m *FieldMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: scrape_fields must be a mapping (line %d)", ErrInvalidSpec, node.Line)
	}
	fields := make(FieldMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("%w: scrape field %q must be a string (line %d)", ErrInvalidSpec, key.Value, val.Line)
		}
		fields = append(fields, Field{Name: key.Value, Selector: val.Value})
	}
	*m = fields
	return nil
}

// -- URL iteration parameters --

// Param is one query parameter of a url-iterate action. A constant is
// broadcast to every URL; a list is expanded in the cross product.
type Param struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
	List   bool     `json:"list,omitempty"`
}

// ParamList keeps parameters in declaration order.
type ParamList []Param

// UnmarshalYAML decodes a mapping whose values are scalars or scalar lists.
func (p *ParamList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: params must be a mapping (line %d)", ErrInvalidSpec, node.Line)
	}
	params := make(ParamList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			params = append(params, Param{Name: key.Value, Values: []string{val.Value}})
		case yaml.SequenceNode:
			values := make([]string, 0, len(val.Content))
			for _, item := range val.Content {
				if item.Kind != yaml.ScalarNode {
					return fmt.Errorf("%w: param %q has a non-scalar value (line %d)", ErrInvalidSpec, key.Value, item.Line)
				}
				values = append(values, item.Value)
			}
			params = append(params, Param{Name: key.Value, Values: values, List: true})
		default:
			return fmt.Errorf("%w: param %q must be a scalar or a list (line %d)", ErrInvalidSpec, key.Value, val.Line)
		}
	}
	*p = params
	return nil
}

// -- Blocks --

// Step is one element of a block: an inline action or a preset reference.
type Step struct {
	Preset string
	Action *ActionSpec
}

// UnmarshalYAML accepts either a preset name or an action mapping.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		s.Preset = strings.TrimSpace(node.Value)
		return nil
	case yaml.MappingNode:
		var spec ActionSpec
		if err := node.Decode(&spec); err != nil {
			return err
		}
		s.Action = &spec
		return nil
	default:
		return fmt.Errorf("%w: block step must be a preset name or an action (line %d)", ErrInvalidSpec, node.Line)
	}
}

// MarshalYAML writes the step back in the form it was declared.
func (s Step) MarshalYAML() (interface{}, error) {
	if s.Action != nil {
		return s.Action, nil
	}
	return s.Preset, nil
}

// Block is an ordered list of steps run against one site.
type Block []Step
