package cypher

// Query is a parsed read-only query: one MATCH pattern, an optional WHERE
// and an optional RETURN.
type Query struct {
	Match  *MatchClause
	Where  *WhereClause
	Return *ReturnClause
}

// MatchClause holds the MATCH pattern.
type MatchClause struct {
	Pattern *Pattern
}

// Pattern alternates nodes and relationships, starting and ending with a
// node.
type Pattern struct {
	Elements []PatternElement
}

// PatternElement is either a NodePattern or a RelPattern.
type PatternElement interface {
	patternElement()
}

// NodePattern matches an entity by label and inline properties.
type NodePattern struct {
	Variable string
	Label    string // entity kind or extra label, e.g. "Function", "Dataclass"
	Props    map[string]string
}

func (*NodePattern) patternElement() {}

// Directions of a relationship pattern.
const (
	DirOutbound = "outbound"
	DirInbound  = "inbound"
	DirAny      = "any"
)

// RelPattern matches a relationship by type, direction and hop range.
type RelPattern struct {
	Variable  string
	Types     []string // e.g. ["CALLS", "IMPORTS"]; empty matches any
	Direction string
	MinHops   int
	MaxHops   int // 0 means unbounded
}

func (*RelPattern) patternElement() {}

// WhereClause holds conditions joined by a single operator.
type WhereClause struct {
	Conditions []Condition
	Operator   string // "AND" or "OR"
}

// Condition compares one property with a literal or parameter value.
type Condition struct {
	Variable string
	Property string
	Operator string // "=", "<>", "=~", "CONTAINS", "STARTS WITH", "ENDS WITH", ">", "<", ">=", "<="
	Value    string
	Negate   bool // NOT prefix
}

// ReturnClause specifies the projection.
type ReturnClause struct {
	Items    []ReturnItem
	OrderBy  string
	OrderDir string // "ASC" or "DESC"
	Limit    int    // 0 means the executor's cap
	Distinct bool
}

// ReturnItem is one projected column.
type ReturnItem struct {
	Variable string // "*" inside COUNT(*)
	Property string // empty returns the whole entity
	Alias    string
	Func     string // "COUNT" or empty
}

// Column is the output column name of the item.
func (it ReturnItem) Column() string {
	switch {
	case it.Alias != "":
		return it.Alias
	case it.Func != "":
		return it.Func + "(" + it.Variable + ")"
	case it.Property != "":
		return it.Variable + "." + it.Property
	}
	return it.Variable
}
