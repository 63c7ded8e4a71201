package cypher

import "fmt"

// Plan is the ordered list of steps for a query.
type Plan struct {
	Steps      []PlanStep
	ReturnSpec *ReturnClause
}

// PlanStep is a single step in the execution plan.
type PlanStep interface {
	stepType() string
}

// ScanNodes binds every entity matching a label and inline properties.
type ScanNodes struct {
	Variable string
	Label    string
	Props    map[string]string
}

func (*ScanNodes) stepType() string { return "scan" }

// ExpandRelationship follows relationships from a bound variable.
type ExpandRelationship struct {
	FromVar   string
	ToVar     string
	RelVar    string
	ToLabel   string
	ToProps   map[string]string
	EdgeTypes []string
	Direction string
	MinHops   int
	MaxHops   int
}

func (*ExpandRelationship) stepType() string { return "expand" }

// FilterWhere drops bindings that fail the conditions.
type FilterWhere struct {
	Conditions []Condition
	Operator   string
}

func (*FilterWhere) stepType() string { return "filter" }

// hiddenPrefix names variables generated for anonymous nodes.
const hiddenPrefix = "_anon"

// BuildPlan turns a query into scan, expand and filter steps. AND
// conditions on the first variable run before any expansion.
func BuildPlan(q *Query) (*Plan, error) {
	plan := &Plan{ReturnSpec: q.Return}
	elements := q.Match.Pattern.Elements
	if len(elements) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}

	first, ok := elements[0].(*NodePattern)
	if !ok {
		return nil, fmt.Errorf("pattern must start with a node")
	}
	// Anonymous nodes still need a binding to expand from.
	for i, el := range elements {
		if n, ok := el.(*NodePattern); ok && n.Variable == "" {
			n.Variable = fmt.Sprintf("%s%d", hiddenPrefix, i)
		}
	}
	plan.Steps = append(plan.Steps, &ScanNodes{
		Variable: first.Variable,
		Label:    first.Label,
		Props:    first.Props,
	})

	var early, late []Condition
	if q.Where != nil {
		if len(elements) > 1 && q.Where.Operator == "AND" {
			for _, c := range q.Where.Conditions {
				if c.Variable == first.Variable {
					early = append(early, c)
				} else {
					late = append(late, c)
				}
			}
		} else {
			late = q.Where.Conditions
		}
	}
	if len(early) > 0 {
		plan.Steps = append(plan.Steps, &FilterWhere{Conditions: early, Operator: "AND"})
	}

	for i := 1; i+1 < len(elements); i += 2 {
		rel, ok1 := elements[i].(*RelPattern)
		to, ok2 := elements[i+1].(*NodePattern)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("pattern element %d: expected relationship then node", i)
		}
		if rel.MaxHops > 0 && rel.MinHops > rel.MaxHops {
			return nil, fmt.Errorf("hop range %d..%d is empty", rel.MinHops, rel.MaxHops)
		}
		plan.Steps = append(plan.Steps, &ExpandRelationship{
			FromVar:   elements[i-1].(*NodePattern).Variable,
			ToVar:     to.Variable,
			RelVar:    rel.Variable,
			ToLabel:   to.Label,
			ToProps:   to.Props,
			EdgeTypes: rel.Types,
			Direction: rel.Direction,
			MinHops:   rel.MinHops,
			MaxHops:   rel.MaxHops,
		})
	}

	if len(late) > 0 {
		plan.Steps = append(plan.Steps, &FilterWhere{Conditions: late, Operator: q.Where.Operator})
	}
	return plan, nil
}
