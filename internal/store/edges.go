package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
)

// edgesBatchSize is the max rows per batch INSERT (5 cols × 150 = 750 vars < 999).
const edgesBatchSize = 150

// UpsertRelationships writes relationships keyed by (project, source, kind,
// target); resubmitting one only refreshes its properties.
func (s *Store) UpsertRelationships(project string, rels []graph.Relationship) error {
	for i := 0; i < len(rels); i += edgesBatchSize {
		end := min(i+edgesBatchSize, len(rels))
		if err := s.insertEdgeChunk(project, rels[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertEdgeChunk(project string, batch []graph.Relationship) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO relationships (project, source_id, kind, target_id, properties) VALUES `)

	args := make([]any, 0, len(batch)*5)
	for i, r := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?)")
		args = append(args, project, r.SourceID, string(r.Kind), r.TargetID, marshalProps(r.Attributes))
	}
	sb.WriteString(` ON CONFLICT(project, source_id, kind, target_id) DO UPDATE SET properties=excluded.properties`)

	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("insert relationship batch: %w", err)
	}
	return nil
}

// FindEdgesBySource finds edges from a node, optionally of one kind.
func (s *Store) FindEdgesBySource(project, sourceID, kind string) ([]*Edge, error) {
	query := "SELECT project, source_id, kind, target_id, properties FROM relationships WHERE project=? AND source_id=?"
	args := []any{project, sourceID}
	if kind != "" {
		query += " AND kind=?"
		args = append(args, kind)
	}
	rows, err := s.q.Query(query+" ORDER BY kind, target_id", args...)
	if err != nil {
		return nil, fmt.Errorf("find edges by source: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// FindEdgesByTarget finds edges to a node, optionally of one kind.
func (s *Store) FindEdgesByTarget(project, targetID, kind string) ([]*Edge, error) {
	query := "SELECT project, source_id, kind, target_id, properties FROM relationships WHERE project=? AND target_id=?"
	args := []any{project, targetID}
	if kind != "" {
		query += " AND kind=?"
		args = append(args, kind)
	}
	rows, err := s.q.Query(query+" ORDER BY kind, source_id", args...)
	if err != nil {
		return nil, fmt.Errorf("find edges by target: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// CountEdges returns the number of relationships in a project.
func (s *Store) CountEdges(project string) (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM relationships WHERE project=?", project).Scan(&count)
	return count, err
}

func scanEdges(rows *sql.Rows) ([]*Edge, error) {
	var result []*Edge
	for rows.Next() {
		var e Edge
		var props string
		if err := rows.Scan(&e.Project, &e.SourceID, &e.Kind, &e.TargetID, &props); err != nil {
			return nil, err
		}
		e.Properties = unmarshalProps(props)
		result = append(result, &e)
	}
	return result, rows.Err()
}
