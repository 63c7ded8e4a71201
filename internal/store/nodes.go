package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/fqn"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
	"github.com/zadzanl/graph-codebase-mcp-extend/internal/lang"
)

const nodeColumns = "project, id, kind, labels, name, qualified_name, file_path, start_line, end_line, excerpt, properties"

// Formula-derived batch size: SQLite has a 999 bind variable limit.
const numNodeCols = 11
const nodesBatchSize = 999 / numNodeCols // = 90

// NodeFromEntity converts a graph entity into its row for project.
func NodeFromEntity(project string, e *graph.Entity) *Node {
	n := &Node{
		Project:    project,
		ID:         e.ID,
		Kind:       string(e.Kind),
		Labels:     labels(e),
		Name:       e.Name,
		FilePath:   e.FilePath,
		StartLine:  e.StartLine,
		EndLine:    e.EndLine,
		Excerpt:    e.SourceExcerpt,
		Properties: e.Attributes,
	}
	l, _ := lang.LanguageForExtension(path.Ext(e.FilePath))
	mod := fqn.ModuleID(l, e.FilePath)
	switch {
	case e.Kind == graph.KindFile:
		n.QualifiedName = fqn.QualifiedName(project, mod, "")
	default:
		name := e.Name
		if owner, ok := e.Attr(graph.AttrClass).(string); ok && owner != "" {
			name = owner + "." + name
		}
		n.QualifiedName = fqn.QualifiedName(project, mod, name)
	}
	return n
}

// labels returns the kind plus the capitalized subkind, if any.
func labels(e *graph.Entity) []string {
	out := []string{string(e.Kind)}
	if sub, ok := e.Attr(graph.AttrSubkind).(string); ok && sub != "" {
		out = append(out, strings.ToUpper(sub[:1])+sub[1:])
	}
	return out
}

// UpsertEntities writes every entity of a project in batched multi-row
// upserts keyed by (project, id).
func (s *Store) UpsertEntities(project string, entities []*graph.Entity) error {
	nodes := make([]*Node, len(entities))
	for i, e := range entities {
		nodes[i] = NodeFromEntity(project, e)
	}
	return s.UpsertNodeBatch(nodes)
}

// UpsertNodeBatch inserts or updates multiple nodes in batched multi-row INSERTs.
func (s *Store) UpsertNodeBatch(nodes []*Node) error {
	for i := 0; i < len(nodes); i += nodesBatchSize {
		end := min(i+nodesBatchSize, len(nodes))
		if err := s.upsertNodeChunk(nodes[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertNodeChunk(batch []*Node) error {
	var sb strings.Builder
	sb.WriteString("INSERT INTO entities (" + nodeColumns + ") VALUES ")

	args := make([]any, 0, len(batch)*numNodeCols)
	for i, n := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?,?,?,?,?,?)")
		args = append(args, n.Project, n.ID, n.Kind, strings.Join(n.Labels, ","), n.Name, n.QualifiedName,
			n.FilePath, n.StartLine, n.EndLine, n.Excerpt, marshalProps(n.Properties))
	}
	sb.WriteString(` ON CONFLICT(project, id) DO UPDATE SET
		kind=excluded.kind, labels=excluded.labels, name=excluded.name,
		qualified_name=excluded.qualified_name, file_path=excluded.file_path,
		start_line=excluded.start_line, end_line=excluded.end_line,
		excerpt=excluded.excerpt, properties=excluded.properties`)

	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("upsert entity batch: %w", err)
	}
	return nil
}

// FindNodeByID returns a node, or nil if there is none.
func (s *Store) FindNodeByID(project, id string) (*Node, error) {
	row := s.q.QueryRow("SELECT "+nodeColumns+" FROM entities WHERE project=? AND id=?", project, id)
	return scanNode(row)
}

// FindNodesByName finds nodes by exact name, optionally restricted to kind.
func (s *Store) FindNodesByName(project, name, kind string) ([]*Node, error) {
	query := "SELECT " + nodeColumns + " FROM entities WHERE project=? AND name=?"
	args := []any{project, name}
	if kind != "" {
		query += " AND kind=?"
		args = append(args, kind)
	}
	query += " ORDER BY file_path, start_line"
	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// FindNodesByLabel finds nodes whose kind or extra labels include label.
func (s *Store) FindNodesByLabel(project, label string) ([]*Node, error) {
	rows, err := s.q.Query("SELECT "+nodeColumns+` FROM entities
		WHERE project=? AND (kind=? OR instr(','||labels||',', ?) > 0)
		ORDER BY file_path, start_line`, project, label, ","+label+",")
	if err != nil {
		return nil, fmt.Errorf("find by label: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// AllNodes returns every node of a project in file order.
func (s *Store) AllNodes(project string) ([]*Node, error) {
	rows, err := s.q.Query("SELECT "+nodeColumns+" FROM entities WHERE project=? ORDER BY file_path, start_line", project)
	if err != nil {
		return nil, fmt.Errorf("all nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// HasLabel reports whether label is the node's kind or one of its labels.
func (n *Node) HasLabel(label string) bool {
	if n.Kind == label {
		return true
	}
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Property returns a column or stored attribute by name; path and
// source_code are accepted as aliases.
func (n *Node) Property(name string) any {
	switch name {
	case "id":
		return n.ID
	case "kind", "label":
		return n.Kind
	case "labels":
		return n.Labels
	case "name":
		return n.Name
	case "qualified_name":
		return n.QualifiedName
	case "file_path", "path":
		return n.FilePath
	case "start_line":
		return n.StartLine
	case "end_line":
		return n.EndLine
	case "excerpt", "source_code":
		return n.Excerpt
	case "project":
		return n.Project
	}
	if v, ok := n.Properties[name]; ok {
		return v
	}
	return nil
}

// FindNodesByFile finds all nodes in a given file.
func (s *Store) FindNodesByFile(project, filePath string) ([]*Node, error) {
	rows, err := s.q.Query("SELECT "+nodeColumns+" FROM entities WHERE project=? AND file_path=? ORDER BY start_line",
		project, filePath)
	if err != nil {
		return nil, fmt.Errorf("find by file: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// CountNodes returns the number of nodes in a project.
func (s *Store) CountNodes(project string) (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM entities WHERE project=?", project).Scan(&count)
	return count, err
}

// DeleteGraph removes every entity, relationship and embedding of a project,
// keeping the project row and file hashes.
func (s *Store) DeleteGraph(project string) error {
	for _, table := range []string{"embeddings", "relationships", "entities"} {
		if _, err := s.q.Exec("DELETE FROM "+table+" WHERE project=?", project); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var n Node
	var labelList, props string
	err := row.Scan(&n.Project, &n.ID, &n.Kind, &labelList, &n.Name, &n.QualifiedName,
		&n.FilePath, &n.StartLine, &n.EndLine, &n.Excerpt, &props)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if labelList != "" {
		n.Labels = strings.Split(labelList, ",")
	}
	n.Properties = unmarshalProps(props)
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*Node, error) {
	var result []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
