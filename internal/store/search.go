package store

import (
	"fmt"
	"strings"
)

// SearchParams defines an excerpt search.
type SearchParams struct {
	Project     string
	Query       string
	Kind        string
	FilePattern string // glob, ** and * allowed
	Limit       int
}

// Search finds entities whose name or source excerpt contains the query,
// name matches first.
func (s *Store) Search(params SearchParams) ([]Match, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}
	q := strings.TrimSpace(params.Query)
	if q == "" {
		return nil, fmt.Errorf("empty search query")
	}
	like := "%" + escapeLike(q) + "%"

	conditions := []string{"project = ?", "(name LIKE ? ESCAPE '\\' OR excerpt LIKE ? ESCAPE '\\')"}
	args := []any{params.Project, like, like}
	if params.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, params.Kind)
	}
	if params.FilePattern != "" {
		conditions = append(conditions, "file_path LIKE ?")
		args = append(args, globToLike(params.FilePattern))
	}
	query := fmt.Sprintf(`
		SELECT %s,
			CASE WHEN name = ? THEN 3 WHEN name LIKE ? ESCAPE '\' THEN 2 ELSE 1 END AS score
		FROM entities
		WHERE %s
		ORDER BY score DESC, file_path, start_line
		LIMIT ?`, nodeColumns, strings.Join(conditions, " AND "))
	args = append([]any{q, like}, args...)
	args = append(args, params.Limit)

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var n Node
		var labelList, props string
		var score int
		if err := rows.Scan(&n.Project, &n.ID, &n.Kind, &labelList, &n.Name, &n.QualifiedName,
			&n.FilePath, &n.StartLine, &n.EndLine, &n.Excerpt, &props, &score); err != nil {
			return nil, err
		}
		if labelList != "" {
			n.Labels = strings.Split(labelList, ",")
		}
		n.Properties = unmarshalProps(props)
		out = append(out, Match{Node: &n, Score: float64(score)})
	}
	return out, rows.Err()
}

// globToLike converts a glob pattern to SQL LIKE pattern.
func globToLike(pattern string) string {
	result := strings.ReplaceAll(pattern, "**", "%")
	result = strings.ReplaceAll(result, "*", "%")
	result = strings.ReplaceAll(result, "?", "_")
	return result
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}
