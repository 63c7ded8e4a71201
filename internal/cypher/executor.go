package cypher

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/store"
)

// DefaultMaxRows caps the rows returned when the executor sets no limit.
const DefaultMaxRows = 200

const (
	// maxBindings caps intermediate matches so a broad pattern cannot
	// exhaust memory before aggregation.
	maxBindings = 10000
	// maxUnboundedHops replaces an open upper bound such as [*2..].
	maxUnboundedHops = 10
)

// relationKinds is followed by variable-length patterns that name no type.
var relationKinds = []string{
	string(graph.RelContains),
	string(graph.RelDefines),
	string(graph.RelExtends),
	string(graph.RelCalls),
	string(graph.RelImports),
}

// Executor runs read-only queries against one project of a store.
type Executor struct {
	Store   *store.Store
	Project string
	MaxRows int
}

// Result holds the tabular output of a query.
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated,omitempty"`
}

// binding maps variable names to matched nodes and edges.
type binding struct {
	nodes map[string]*store.Node
	edges map[string]*store.Edge
}

func newBinding() binding {
	return binding{
		nodes: make(map[string]*store.Node),
		edges: make(map[string]*store.Edge),
	}
}

func (b binding) with(nodeVar string, n *store.Node, edgeVar string, e *store.Edge) binding {
	c := newBinding()
	for k, v := range b.nodes {
		c.nodes[k] = v
	}
	for k, v := range b.edges {
		c.edges[k] = v
	}
	if nodeVar != "" {
		c.nodes[nodeVar] = n
	}
	if edgeVar != "" && e != nil {
		c.edges[edgeVar] = e
	}
	return c
}

type adjacent struct {
	node *store.Node
	edge *store.Edge
}

// run carries the state of a single execution.
type run struct {
	*Executor
	ctx       context.Context
	regexps   map[string]*regexp.Regexp
	truncated bool
}

// Execute parses, plans and executes a query with the given parameters.
func (e *Executor) Execute(ctx context.Context, query string, params map[string]any) (*Result, error) {
	if e.Project == "" {
		return nil, fmt.Errorf("no project selected")
	}
	q, err := Parse(query, params)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	plan, err := BuildPlan(q)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	r := &run{Executor: e, ctx: ctx, regexps: make(map[string]*regexp.Regexp)}
	bindings, err := r.executeSteps(plan.Steps)
	if err != nil {
		return nil, err
	}
	res, err := r.project(bindings, plan.ReturnSpec)
	if err != nil {
		return nil, err
	}
	res.Truncated = res.Truncated || r.truncated
	return res, nil
}

func (e *Executor) maxRows() int {
	if e.MaxRows > 0 {
		return e.MaxRows
	}
	return DefaultMaxRows
}

func (r *run) executeSteps(steps []PlanStep) ([]binding, error) {
	var bindings []binding
	for _, step := range steps {
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		switch s := step.(type) {
		case *ScanNodes:
			bindings, err = r.execScan(s)
		case *ExpandRelationship:
			bindings, err = r.execExpand(s, bindings)
		case *FilterWhere:
			bindings, err = r.execFilter(s, bindings)
		default:
			return nil, fmt.Errorf("unknown step type: %T", step)
		}
		if err != nil {
			return nil, err
		}
	}
	return bindings, nil
}

func (r *run) execScan(s *ScanNodes) ([]binding, error) {
	var nodes []*store.Node
	var err error
	if s.Label != "" {
		nodes, err = r.Store.FindNodesByLabel(r.Project, s.Label)
	} else {
		nodes, err = r.Store.AllNodes(r.Project)
	}
	if err != nil {
		return nil, fmt.Errorf("scan nodes: %w", err)
	}

	var bindings []binding
	for _, n := range nodes {
		if !matchesProps(n, s.Props) {
			continue
		}
		bindings = append(bindings, newBinding().with(s.Variable, n, "", nil))
	}
	return bindings, nil
}

func (r *run) execExpand(s *ExpandRelationship, bindings []binding) ([]binding, error) {
	variable := s.MinHops != 1 || s.MaxHops != 1
	var result []binding
	for _, b := range bindings {
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}
		from, ok := b.nodes[s.FromVar]
		if !ok {
			continue
		}
		var expanded []binding
		var err error
		if variable {
			expanded, err = r.expandVariableLength(b, from, s)
		} else {
			expanded, err = r.expandFixedLength(b, from, s)
		}
		if err != nil {
			return nil, err
		}
		result = append(result, expanded...)
		if len(result) >= maxBindings {
			result = result[:maxBindings]
			r.truncated = true
			break
		}
	}
	return result, nil
}

func (r *run) expandFixedLength(b binding, from *store.Node, s *ExpandRelationship) ([]binding, error) {
	adj, err := r.adjacent(from.ID, s.EdgeTypes, s.Direction)
	if err != nil {
		return nil, err
	}
	var result []binding
	for _, a := range adj {
		if !targetMatches(a.node, s) {
			continue
		}
		result = append(result, b.with(s.ToVar, a.node, s.RelVar, a.edge))
	}
	return result, nil
}

// expandVariableLength binds every node between MinHops and MaxHops away.
// Relationship variables are not bound on variable-length patterns.
func (r *run) expandVariableLength(b binding, from *store.Node, s *ExpandRelationship) ([]binding, error) {
	maxHops := s.MaxHops
	if maxHops <= 0 || maxHops > maxUnboundedHops {
		maxHops = maxUnboundedHops
	}
	kinds := s.EdgeTypes
	if len(kinds) == 0 {
		kinds = relationKinds
	}

	var hops []*store.NodeHop
	if s.Direction == DirAny {
		var err error
		if hops, err = r.walkUndirected(from, kinds, maxHops); err != nil {
			return nil, err
		}
	} else {
		res, err := r.Store.BFS(r.Project, from.ID, s.Direction, kinds, maxHops, maxBindings)
		if err != nil {
			return nil, fmt.Errorf("bfs: %w", err)
		}
		hops = res.Visited
	}
	if s.MinHops == 0 {
		hops = append([]*store.NodeHop{{Node: from, Hop: 0}}, hops...)
	}

	var result []binding
	for _, h := range hops {
		if h.Hop < s.MinHops || !targetMatches(h.Node, s) {
			continue
		}
		result = append(result, b.with(s.ToVar, h.Node, "", nil))
	}
	return result, nil
}

// walkUndirected is a breadth-first walk that follows edges both ways.
func (r *run) walkUndirected(from *store.Node, kinds []string, maxHops int) ([]*store.NodeHop, error) {
	seen := map[string]bool{from.ID: true}
	frontier := []*store.Node{from}
	var hops []*store.NodeHop
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []*store.Node
		for _, n := range frontier {
			adj, err := r.adjacent(n.ID, kinds, DirAny)
			if err != nil {
				return nil, err
			}
			for _, a := range adj {
				if seen[a.node.ID] {
					continue
				}
				seen[a.node.ID] = true
				hops = append(hops, &store.NodeHop{Node: a.node, Hop: hop})
				next = append(next, a.node)
			}
		}
		frontier = next
	}
	return hops, nil
}

// adjacent returns the neighbours of id over edges of the given kinds,
// one entry per neighbour.
func (r *run) adjacent(id string, kinds []string, direction string) ([]adjacent, error) {
	if len(kinds) == 0 {
		kinds = []string{""}
	}
	var edges []*store.Edge
	for _, k := range kinds {
		if direction != DirInbound {
			out, err := r.Store.FindEdgesBySource(r.Project, id, k)
			if err != nil {
				return nil, err
			}
			edges = append(edges, out...)
		}
		if direction != DirOutbound {
			in, err := r.Store.FindEdgesByTarget(r.Project, id, k)
			if err != nil {
				return nil, err
			}
			edges = append(edges, in...)
		}
	}

	seen := make(map[string]bool)
	var result []adjacent
	for _, edge := range edges {
		other := edge.TargetID
		if edge.TargetID == id && direction != DirOutbound {
			other = edge.SourceID
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		n, err := r.Store.FindNodeByID(r.Project, other)
		if err != nil {
			return nil, err
		}
		if n != nil {
			result = append(result, adjacent{node: n, edge: edge})
		}
	}
	return result, nil
}

func targetMatches(n *store.Node, s *ExpandRelationship) bool {
	if s.ToLabel != "" && !n.HasLabel(s.ToLabel) {
		return false
	}
	return matchesProps(n, s.ToProps)
}

func matchesProps(n *store.Node, props map[string]string) bool {
	for key, want := range props {
		if fmt.Sprint(n.Property(key)) != want {
			return false
		}
	}
	return true
}

func (r *run) execFilter(s *FilterWhere, bindings []binding) ([]binding, error) {
	var result []binding
	for _, b := range bindings {
		ok, err := r.evaluate(b, s.Conditions, s.Operator)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, b)
		}
	}
	return result, nil
}

func (r *run) evaluate(b binding, conditions []Condition, op string) (bool, error) {
	for _, c := range conditions {
		ok, err := r.evaluateCondition(b, c)
		if err != nil {
			return false, err
		}
		if op == "OR" && ok {
			return true, nil
		}
		if op != "OR" && !ok {
			return false, nil
		}
	}
	return op != "OR", nil
}

func (r *run) evaluateCondition(b binding, c Condition) (bool, error) {
	actual, bound := lookup(b, c.Variable, c.Property)
	if !bound {
		return false, fmt.Errorf("unknown variable %q in WHERE", c.Variable)
	}
	ok, err := r.compare(actual, c)
	if err != nil {
		return false, err
	}
	return ok != c.Negate, nil
}

func (r *run) compare(actual any, c Condition) (bool, error) {
	if actual == nil {
		return false, nil
	}
	s := fmt.Sprint(actual)
	switch c.Operator {
	case "=":
		return s == c.Value, nil
	case "<>":
		return s != c.Value, nil
	case "=~":
		re, err := r.regexp(c.Value)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	case "CONTAINS":
		return strings.Contains(s, c.Value), nil
	case "STARTS WITH":
		return strings.HasPrefix(s, c.Value), nil
	case "ENDS WITH":
		return strings.HasSuffix(s, c.Value), nil
	case ">", "<", ">=", "<=":
		return compareNumeric(actual, c.Value, c.Operator), nil
	}
	return false, fmt.Errorf("unsupported operator: %s", c.Operator)
}

// regexp compiles a pattern once per run. Patterns match the whole value.
func (r *run) regexp(pattern string) (*regexp.Regexp, error) {
	if re, ok := r.regexps[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("regex %q: %w", pattern, err)
	}
	r.regexps[pattern] = re
	return re, nil
}

func compareNumeric(actual any, expected, op string) bool {
	want, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return false
	}
	got, ok := toFloat(actual)
	if !ok {
		return false
	}
	switch op {
	case ">":
		return got > want
	case "<":
		return got < want
	case ">=":
		return got >= want
	default:
		return got <= want
	}
}

// lookup resolves variable.property against a binding; an empty property
// returns the whole node or edge.
func lookup(b binding, variable, property string) (any, bool) {
	if n, ok := b.nodes[variable]; ok {
		if property == "" {
			return nodeMap(n), true
		}
		return n.Property(property), true
	}
	if e, ok := b.edges[variable]; ok {
		if property == "" {
			return edgeMap(e), true
		}
		return edgeProperty(e, property), true
	}
	return nil, false
}

func edgeProperty(e *store.Edge, prop string) any {
	switch prop {
	case "kind", "type":
		return e.Kind
	case "source_id":
		return e.SourceID
	case "target_id":
		return e.TargetID
	case "project":
		return e.Project
	}
	if v, ok := e.Properties[prop]; ok {
		return v
	}
	return nil
}

func nodeMap(n *store.Node) map[string]any {
	return map[string]any{
		"id":             n.ID,
		"kind":           n.Kind,
		"labels":         n.Labels,
		"name":           n.Name,
		"qualified_name": n.QualifiedName,
		"file_path":      n.FilePath,
		"start_line":     n.StartLine,
		"end_line":       n.EndLine,
	}
}

func edgeMap(e *store.Edge) map[string]any {
	return map[string]any{
		"kind":      e.Kind,
		"source_id": e.SourceID,
		"target_id": e.TargetID,
	}
}

func (r *run) project(bindings []binding, ret *ReturnClause) (*Result, error) {
	if ret == nil {
		return r.defaultProjection(bindings), nil
	}
	for _, item := range ret.Items {
		if item.Variable == "*" {
			continue
		}
		if !r.declared(bindings, item.Variable) {
			return nil, fmt.Errorf("unknown variable %q in RETURN", item.Variable)
		}
	}

	cols := make([]string, len(ret.Items))
	for i, item := range ret.Items {
		cols[i] = item.Column()
	}

	var rows []map[string]any
	if hasCount(ret) {
		rows = aggregate(bindings, ret, cols)
	} else {
		rows = projectRows(bindings, ret, cols)
	}

	if ret.OrderBy != "" {
		col, err := orderColumn(ret, cols)
		if err != nil {
			return nil, err
		}
		sortRows(rows, col, ret.OrderDir)
	}

	res := &Result{Columns: cols, Rows: rows}
	r.limit(res, ret.Limit)
	return res, nil
}

// declared reports whether a variable is bound. Without bindings every
// variable is accepted since there is nothing to check against.
func (r *run) declared(bindings []binding, variable string) bool {
	if len(bindings) == 0 {
		return true
	}
	_, ok := lookup(bindings[0], variable, "")
	return ok
}

func (r *run) limit(res *Result, limit int) {
	n := r.maxRows()
	if limit <= 0 || limit > n {
		if len(res.Rows) > n {
			res.Truncated = true
		}
		limit = n
	}
	if len(res.Rows) > limit {
		res.Rows = res.Rows[:limit]
	}
	if res.Rows == nil {
		res.Rows = []map[string]any{}
	}
}

func (r *run) defaultProjection(bindings []binding) *Result {
	nodeVars := make(map[string]bool)
	edgeVars := make(map[string]bool)
	for _, b := range bindings {
		for k := range b.nodes {
			if !strings.HasPrefix(k, hiddenPrefix) {
				nodeVars[k] = true
			}
		}
		for k := range b.edges {
			edgeVars[k] = true
		}
	}
	cols := []string{}
	for k := range nodeVars {
		cols = append(cols, k+".id", k+".name", k+".kind")
	}
	for k := range edgeVars {
		cols = append(cols, k+".kind")
	}
	sort.Strings(cols)

	var rows []map[string]any
	for _, b := range bindings {
		row := make(map[string]any)
		for v, n := range b.nodes {
			if !nodeVars[v] {
				continue
			}
			row[v+".id"] = n.ID
			row[v+".name"] = n.Name
			row[v+".kind"] = n.Kind
		}
		for v, e := range b.edges {
			row[v+".kind"] = e.Kind
		}
		rows = append(rows, row)
	}
	res := &Result{Columns: cols, Rows: rows}
	r.limit(res, 0)
	return res
}

func hasCount(ret *ReturnClause) bool {
	for _, item := range ret.Items {
		if item.Func == "COUNT" {
			return true
		}
	}
	return false
}

func projectRows(bindings []binding, ret *ReturnClause, cols []string) []map[string]any {
	seen := make(map[string]bool)
	var rows []map[string]any
	for _, b := range bindings {
		row := make(map[string]any, len(cols))
		vals := make([]any, len(cols))
		for i, item := range ret.Items {
			vals[i], _ = lookup(b, item.Variable, item.Property)
			row[cols[i]] = vals[i]
		}
		if ret.Distinct {
			key := fmt.Sprint(vals...)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		rows = append(rows, row)
	}
	return rows
}

// aggregate groups bindings by the non-COUNT items.
func aggregate(bindings []binding, ret *ReturnClause, cols []string) []map[string]any {
	type group struct {
		row   map[string]any
		count int
	}
	groups := make(map[string]*group)
	var order []string

	for _, b := range bindings {
		row := make(map[string]any, len(cols))
		var key []string
		for i, item := range ret.Items {
			if item.Func != "" {
				continue
			}
			v, _ := lookup(b, item.Variable, item.Property)
			row[cols[i]] = v
			key = append(key, fmt.Sprint(v))
		}
		k := strings.Join(key, "\x00")
		if g, ok := groups[k]; ok {
			g.count++
			continue
		}
		groups[k] = &group{row: row, count: 1}
		order = append(order, k)
	}

	rows := make([]map[string]any, 0, len(order))
	for _, k := range order {
		g := groups[k]
		for i, item := range ret.Items {
			if item.Func == "COUNT" {
				g.row[cols[i]] = g.count
			}
		}
		rows = append(rows, g.row)
	}
	// COUNT over no matches still yields one row when nothing is grouped.
	if len(rows) == 0 && len(ret.Items) == 1 {
		rows = append(rows, map[string]any{cols[0]: 0})
	}
	return rows
}

func orderColumn(ret *ReturnClause, cols []string) (string, error) {
	for i, item := range ret.Items {
		if item.Alias == ret.OrderBy || cols[i] == ret.OrderBy {
			return cols[i], nil
		}
	}
	return "", fmt.Errorf("ORDER BY %s must name a returned column", ret.OrderBy)
}

func sortRows(rows []map[string]any, col, dir string) {
	sort.SliceStable(rows, func(i, j int) bool {
		cmp := compareValues(rows[i][col], rows[j][col])
		if dir == "DESC" {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareValues(a, b any) int {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
