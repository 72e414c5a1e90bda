package types

// RuleCommand is the matching operation a Mapping Rule evaluates.
type RuleCommand string

const (
	CommandEquals     RuleCommand = "equals"
	CommandContains   RuleCommand = "contains"
	CommandStartsWith RuleCommand = "startswith"
	CommandEndsWith   RuleCommand = "endswith"
	CommandRegex      RuleCommand = "regex"
)

// MappingRule is a reusable matching definition.
type MappingRule struct {
	ID      int64
	Name    string
	Enabled bool
	Command RuleCommand
	Pattern string
	AIFlag  bool
	Human   bool
}

// RuleAssignment binds a rule to a (master-type, child-type) pair at
// a priority. Lower Priority number wins.
type RuleAssignment struct {
	RuleID         int64
	MasterTypeID   int64
	ChildTypeID    int64
	Priority       int
	Enabled        bool
	Rule           MappingRule
}

// Mapping is a customer-node -> Master-node assignment.
type Mapping struct {
	ID            int64
	RuleID        int64
	MasterNodeID  int64
	ChildNodeID   int64
	Confidence    int
	Status        EntityStatus
	AttributedBy  string
}

// GoldMapping is the derived Gold projection row.
type GoldMapping struct {
	MappingID    int64
	MasterNodeID int64
	ChildNodeID  int64
}

// TransitionAction is the outcome of evaluating one customer node
// against the rule cache and its existing mapping (spec §4.H, the
// fundamental state-transition table).
type TransitionAction string

const (
	ActionCreate      TransitionAction = "create"
	ActionUnchanged   TransitionAction = "unchanged"
	ActionSupersede   TransitionAction = "supersede"
	ActionNoOp        TransitionAction = "no-op"
	ActionDeactivate  TransitionAction = "deactivate"
)

// NodeMappingResult captures the per-node outcome of one Mapping
// Engine pass, including any non-fatal error encountered while
// evaluating that node (spec §4.H step 4, §7 MappingRuleApplicationError).
type NodeMappingResult struct {
	ChildNodeID int64
	Action      TransitionAction
	MappingID   int64
	Err         error
}
