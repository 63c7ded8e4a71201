package store

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaInfo contains graph schema statistics.
type SchemaInfo struct {
	EntityKinds          []LabelCount `json:"entity_kinds"`
	Labels               []LabelCount `json:"labels"`
	RelationshipTypes    []TypeCount  `json:"relationship_types"`
	RelationshipPatterns []string     `json:"relationship_patterns"`
	SampleFunctionNames  []string     `json:"sample_function_names"`
	SampleClassNames     []string     `json:"sample_class_names"`
	Embeddings           int          `json:"embeddings"`
}

// LabelCount is a label with its count.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TypeCount is a relationship type with its count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// GetSchema returns graph schema statistics for a project.
func (s *Store) GetSchema(project string) (*SchemaInfo, error) {
	info := &SchemaInfo{}

	var err error
	if info.EntityKinds, err = s.countBy("SELECT kind, COUNT(*) AS cnt FROM entities WHERE project=? GROUP BY kind ORDER BY cnt DESC, kind", project); err != nil {
		return nil, err
	}
	if info.Labels, err = s.schemaLabels(project); err != nil {
		return nil, err
	}
	kinds, err := s.countBy("SELECT kind, COUNT(*) AS cnt FROM relationships WHERE project=? GROUP BY kind ORDER BY cnt DESC, kind", project)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		info.RelationshipTypes = append(info.RelationshipTypes, TypeCount{Type: k.Label, Count: k.Count})
	}
	if info.RelationshipPatterns, err = s.schemaRelPatterns(project); err != nil {
		return nil, err
	}
	if info.SampleFunctionNames, err = s.schemaSampleNames(project, "Function", 30); err != nil {
		return nil, err
	}
	if info.SampleClassNames, err = s.schemaSampleNames(project, "Class", 20); err != nil {
		return nil, err
	}
	if err := s.q.QueryRow("SELECT COUNT(*) FROM embeddings WHERE project=?", project).Scan(&info.Embeddings); err != nil {
		return nil, fmt.Errorf("schema embeddings: %w", err)
	}
	return info, nil
}

func (s *Store) countBy(query, project string) ([]LabelCount, error) {
	rows, err := s.q.Query(query, project)
	if err != nil {
		return nil, fmt.Errorf("schema counts: %w", err)
	}
	defer rows.Close()
	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// schemaLabels counts every label, so a Class that is also an Interface is
// counted under both.
func (s *Store) schemaLabels(project string) ([]LabelCount, error) {
	rows, err := s.q.Query("SELECT labels FROM entities WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("schema labels: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var list string
		if err := rows.Scan(&list); err != nil {
			return nil, err
		}
		if list == "" {
			continue
		}
		for _, l := range strings.Split(list, ",") {
			counts[l]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]LabelCount, 0, len(counts))
	for l, c := range counts {
		out = append(out, LabelCount{Label: l, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// schemaRelPatterns builds relationship patterns via an id→kind map and an
// edge scan instead of a three-way join.
func (s *Store) schemaRelPatterns(project string) ([]string, error) {
	idKind := make(map[string]string, 4096)
	rows, err := s.q.Query("SELECT id, kind FROM entities WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("schema id-kind: %w", err)
	}
	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			rows.Close()
			return nil, err
		}
		idKind[id] = kind
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	type patternKey struct{ src, rel, tgt string }
	patternCounts := make(map[patternKey]int)
	rows2, err := s.q.Query("SELECT source_id, kind, target_id FROM relationships WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("schema edge scan: %w", err)
	}
	defer rows2.Close()
	for rows2.Next() {
		var src, kind, tgt string
		if err := rows2.Scan(&src, &kind, &tgt); err != nil {
			return nil, err
		}
		patternCounts[patternKey{src: idKind[src], rel: kind, tgt: idKind[tgt]}]++
	}
	if err := rows2.Err(); err != nil {
		return nil, err
	}

	type patternEntry struct {
		key patternKey
		cnt int
	}
	entries := make([]patternEntry, 0, len(patternCounts))
	for k, v := range patternCounts {
		entries = append(entries, patternEntry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].cnt != entries[j].cnt {
			return entries[i].cnt > entries[j].cnt
		}
		a, b := entries[i].key, entries[j].key
		return a.src+a.rel+a.tgt < b.src+b.rel+b.tgt
	})
	if len(entries) > 25 {
		entries = entries[:25]
	}
	patterns := make([]string, 0, len(entries))
	for _, e := range entries {
		patterns = append(patterns, fmt.Sprintf("(:%s)-[:%s]->(:%s)  [%dx]", e.key.src, e.key.rel, e.key.tgt, e.cnt))
	}
	return patterns, nil
}

func (s *Store) schemaSampleNames(project, kind string, limit int) ([]string, error) {
	rows, err := s.q.Query("SELECT DISTINCT name FROM entities WHERE project=? AND kind=? ORDER BY name LIMIT ?", project, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("schema sample %s: %w", kind, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
