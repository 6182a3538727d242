// Package survey provides the survey definition data model.
//
// Definitions follow a YAML-based format: a named tree of nodes whose
// top-level "set" children become pages, plus optional page-level branching
// logic and computed-field declarations. The version field is optional and
// defaults to "1.0". Conditions may be authored as a bare expression string,
// a single structured rule, or a list of rules (implicit AND), and the
// decoder accepts all three shapes.
package survey

import (
	"fmt"
	"os"

	"github.com/formwalk/formwalk/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode selects how the definition tree is flattened into pages.
type Mode string

const (
	// ModePaged groups blocks under their top-level "set" containers.
	ModePaged Mode = "paged"

	// ModePageless promotes every block to its own single-block page.
	ModePageless Mode = "pageless"
)

// BlockType identifies the kind of a block or container node.
type BlockType string

const (
	// BlockTypeSet is the page container node type.
	BlockTypeSet BlockType = "set"

	// BlockTypeInput is a free-text input block.
	BlockTypeInput BlockType = "input"

	// BlockTypeSelect is a single-choice block.
	BlockTypeSelect BlockType = "select"

	// BlockTypeMultiSelect is a multiple-choice block.
	BlockTypeMultiSelect BlockType = "multiselect"

	// BlockTypeCheckbox is a boolean block.
	BlockTypeCheckbox BlockType = "checkbox"

	// BlockTypeNumber is a numeric input block.
	BlockTypeNumber BlockType = "number"

	// BlockTypeDate is a date input block.
	BlockTypeDate BlockType = "date"

	// BlockTypeStatement is a display-only block with no answer.
	BlockTypeStatement BlockType = "statement"

	// BlockTypeAuth is an authentication gate block. Auth blocks are
	// skipped on back-navigation once the respondent is authenticated.
	BlockTypeAuth BlockType = "auth"
)

// TargetSubmit is the sentinel navigation target that ends the survey.
const TargetSubmit = "submit"

// Branching target keywords for page-level branching logic.
const (
	TargetNext = "next"
	TargetPrev = "prev"
)

// Definition represents a YAML-based survey definition.
// It is the unit loaded from a file, validated, and handed to the graph
// builder. The Version field is optional and defaults to "1.0".
type Definition struct {
	// Name is the survey identifier
	Name string `yaml:"name" json:"name"`

	// Description provides human-readable context about the survey
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Version tracks the definition schema version (optional, defaults to "1.0")
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Mode selects paged or pageless flattening (defaults to paged)
	Mode Mode `yaml:"mode,omitempty" json:"mode,omitempty"`

	// RootNode is the root of the survey tree; its children are sets (pages)
	// in paged mode, or bare blocks in pageless mode
	RootNode Node `yaml:"root" json:"root"`

	// Branching holds page-level branching logic entries, keyed by page index
	Branching []PageBranching `yaml:"branching,omitempty" json:"branching,omitempty"`

	// Computed declares derived fields evaluated from answers; their values
	// are merged into the value context conditions read
	Computed []ComputedField `yaml:"computed,omitempty" json:"computed,omitempty"`
}

// Block is a single question/content unit with a stable UUID and optional
// navigation rules. Blocks are owned by the survey tree and referenced from
// navigation history by UUID, never by index.
type Block struct {
	// UUID uniquely and stably identifies this block across tree edits
	UUID string `yaml:"uuid" json:"uuid"`

	// Type is the block type (input, select, auth, ...)
	Type BlockType `yaml:"type" json:"type"`

	// FieldName is the answer key this block writes into the value context
	FieldName string `yaml:"field,omitempty" json:"field,omitempty"`

	// Title is the renderer-facing question text
	Title string `yaml:"title,omitempty" json:"title,omitempty"`

	// Description is optional renderer-facing help text
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Options lists the choices for select/multiselect blocks
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`

	// NavigationRules are conditional edges out of this block.
	// Declaration order is significant: the first true condition wins.
	NavigationRules []NavigationRule `yaml:"navigation_rules,omitempty" json:"navigation_rules,omitempty"`

	// NextBlockID is an explicit unconditional next pointer, consulted only
	// after all navigation rules (including defaults) fail to match
	NextBlockID string `yaml:"next_block,omitempty" json:"next_block,omitempty"`

	// VisibleIf hides the block (and excludes it from progress counts)
	// when it evaluates false against the current value context
	VisibleIf *Condition `yaml:"visible_if,omitempty" json:"visible_if,omitempty"`

	// SkipOnBack marks the block to be bypassed by back-navigation
	SkipOnBack bool `yaml:"skip_on_back,omitempty" json:"skip_on_back,omitempty"`
}

// Node is one node of the survey tree: a block, optionally carrying child
// nodes when it is a "set" container.
type Node struct {
	Block `yaml:",inline"`

	// Items holds child nodes for set containers
	Items []Node `yaml:"items,omitempty" json:"items,omitempty"`
}

// IsSet reports whether the node is a page container.
func (n *Node) IsSet() bool {
	return n.Type == BlockTypeSet
}

// NavigationRule is a conditional edge from a block to a target block/page
// or to submission.
type NavigationRule struct {
	// Condition gates this rule; a nil condition always matches
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Target is a block/page UUID or the "submit" sentinel
	Target string `yaml:"target" json:"target"`

	// IsPage marks Target as a page UUID rather than a block UUID
	IsPage bool `yaml:"is_page,omitempty" json:"is_page,omitempty"`

	// IsDefault marks this rule as the fallback once no ordinary rule matches
	IsDefault bool `yaml:"is_default,omitempty" json:"is_default,omitempty"`
}

// PageBranching is a page-level conditional edge.
type PageBranching struct {
	// Page is the 0-based index of the page this entry applies to
	Page int `yaml:"page" json:"page"`

	// Condition gates the branch; a nil condition always matches
	Condition *Condition `yaml:"condition,omitempty" json:"condition,omitempty"`

	// TargetPage is a numeric page index, "next", "prev", or "submit"
	TargetPage string `yaml:"target" json:"target"`
}

// ComputedField declares a derived value recomputed from answers,
// available to conditions like an answer. The expression is a jq program
// evaluated against the answers document.
type ComputedField struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
}

// ValueType declares how structured rule operands are coerced before
// comparison.
type ValueType string

const (
	ValueTypeString  ValueType = "string"
	ValueTypeNumber  ValueType = "number"
	ValueTypeBoolean ValueType = "boolean"
	ValueTypeDate    ValueType = "date"
)

// Operator is a structured rule comparison operator. Operator names match
// the ones the visual rule builder emits.
type Operator string

const (
	OpEq           Operator = "eq"
	OpNeq          Operator = "neq"
	OpGt           Operator = "gt"
	OpGte          Operator = "gte"
	OpLt           Operator = "lt"
	OpLte          Operator = "lte"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "notContains"
	OpStartsWith   Operator = "startsWith"
	OpEndsWith     Operator = "endsWith"
	OpEmpty        Operator = "empty"
	OpNotEmpty     Operator = "notEmpty"
	OpBetween      Operator = "between"
	OpNotBetween   Operator = "notBetween"
	OpIn           Operator = "in"
	OpNotIn        Operator = "notIn"
	OpContainsAny  Operator = "containsAny"
	OpContainsAll  Operator = "containsAll"
	OpContainsNone Operator = "containsNone"
	OpMatches      Operator = "matches"
)

// KnownOperators lists every structured rule operator the evaluator accepts.
var KnownOperators = map[Operator]bool{
	OpEq: true, OpNeq: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpContains: true, OpNotContains: true,
	OpStartsWith: true, OpEndsWith: true,
	OpEmpty: true, OpNotEmpty: true,
	OpBetween: true, OpNotBetween: true,
	OpIn: true, OpNotIn: true,
	OpContainsAny: true, OpContainsAll: true, OpContainsNone: true,
	OpMatches: true,
}

// ConditionRule is a single structured (field, operator, value) comparison.
type ConditionRule struct {
	// Field is the answer key to compare; dotted paths reach nested values
	Field string `yaml:"field" json:"field"`

	// Operator selects the comparison
	Operator Operator `yaml:"operator" json:"operator"`

	// Value is the comparison operand (a two-element list for between,
	// a list for in/contains* variants)
	Value interface{} `yaml:"value,omitempty" json:"value,omitempty"`

	// ValueType declares operand coercion (defaults to string)
	ValueType ValueType `yaml:"value_type,omitempty" json:"value_type,omitempty"`
}

// Condition is either a string expression, a single structured rule, or a
// list of structured rules combined with implicit AND. Exactly one of the
// three fields is populated.
type Condition struct {
	// Expression is the string-expression form
	Expression string `json:"expression,omitempty"`

	// Rule is the single structured rule form
	Rule *ConditionRule `json:"rule,omitempty"`

	// Rules is the rule-list form (implicit AND)
	Rules []ConditionRule `json:"rules,omitempty"`
}

// UnmarshalYAML accepts the three authored condition shapes: a bare scalar
// (expression string), a mapping (one structured rule), or a sequence
// (rule list).
func (c *Condition) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&c.Expression)
	case yaml.MappingNode:
		rule := &ConditionRule{}
		if err := value.Decode(rule); err != nil {
			return err
		}
		c.Rule = rule
		return nil
	case yaml.SequenceNode:
		return value.Decode(&c.Rules)
	default:
		return &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("unsupported YAML node kind %d", value.Kind),
			Suggestion: "use an expression string, a rule mapping, or a rule list",
		}
	}
}

// MarshalYAML emits the same compact shape the decoder accepts.
func (c Condition) MarshalYAML() (interface{}, error) {
	switch {
	case c.Rule != nil:
		return c.Rule, nil
	case len(c.Rules) > 0:
		return c.Rules, nil
	default:
		return c.Expression, nil
	}
}

// IsZero reports whether the condition carries no content at all.
// Zero conditions evaluate to true.
func (c *Condition) IsZero() bool {
	return c == nil || (c.Expression == "" && c.Rule == nil && len(c.Rules) == 0)
}

// Expr is a convenience constructor for the string-expression form.
func Expr(expression string) *Condition {
	return &Condition{Expression: expression}
}

// Parse decodes a YAML survey definition and applies defaults.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &errors.ConfigError{
			Key:    "definition",
			Reason: "invalid YAML",
			Cause:  err,
		}
	}
	def.applyDefaults()
	return &def, nil
}

// Load reads and parses a YAML survey definition from disk.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ConfigError{
			Key:    "definition",
			Reason: fmt.Sprintf("cannot read %s", path),
			Cause:  err,
		}
	}
	def, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return def, nil
}

// applyDefaults fills optional fields with their documented defaults.
func (d *Definition) applyDefaults() {
	if d.Version == "" {
		d.Version = "1.0"
	}
	if d.Mode == "" {
		d.Mode = ModePaged
	}
	if d.RootNode.Type == "" {
		d.RootNode.Type = BlockTypeSet
	}
}
