package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Project represents an indexed project.
type Project struct {
	Name      string `json:"name"`
	IndexedAt string `json:"indexed_at"`
	RootPath  string `json:"root_path"`
	RunID     string `json:"run_id,omitempty"`
}

// UpsertProject creates or updates a project record.
func (s *Store) UpsertProject(name, rootPath, runID string) error {
	_, err := s.q.Exec(`
		INSERT INTO projects (name, indexed_at, root_path, run_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET indexed_at=excluded.indexed_at, root_path=excluded.root_path, run_id=excluded.run_id`,
		name, Now(), rootPath, runID)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// GetProject returns a project by name, or nil if it was never indexed.
func (s *Store) GetProject(name string) (*Project, error) {
	var p Project
	err := s.q.QueryRow("SELECT name, indexed_at, root_path, run_id FROM projects WHERE name=?", name).
		Scan(&p.Name, &p.IndexedAt, &p.RootPath, &p.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all indexed projects.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.q.Query("SELECT name, indexed_at, root_path, run_id FROM projects ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Name, &p.IndexedAt, &p.RootPath, &p.RunID); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// DeleteProject deletes a project and all associated data (CASCADE).
func (s *Store) DeleteProject(name string) error {
	_, err := s.q.Exec("DELETE FROM projects WHERE name=?", name)
	return err
}

// GetFileHashes returns all file hashes for a project.
func (s *Store) GetFileHashes(project string) (map[string]string, error) {
	rows, err := s.q.Query("SELECT rel_path, hash FROM file_hashes WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("get file hashes: %w", err)
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		result[path] = hash
	}
	return result, rows.Err()
}

const hashBatchSize = 999 / 3

// ReplaceFileHashes makes hashes the complete set of file hashes of project.
func (s *Store) ReplaceFileHashes(project string, hashes map[string]string) error {
	if _, err := s.q.Exec("DELETE FROM file_hashes WHERE project=?", project); err != nil {
		return fmt.Errorf("clear file hashes: %w", err)
	}
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for i := 0; i < len(paths); i += hashBatchSize {
		end := min(i+hashBatchSize, len(paths))
		var sb strings.Builder
		sb.WriteString("INSERT INTO file_hashes (project, rel_path, hash) VALUES ")
		args := make([]any, 0, (end-i)*3)
		for j, p := range paths[i:end] {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?,?,?)")
			args = append(args, project, p, hashes[p])
		}
		sb.WriteString(" ON CONFLICT(project, rel_path) DO UPDATE SET hash=excluded.hash")
		if _, err := s.q.Exec(sb.String(), args...); err != nil {
			return fmt.Errorf("insert file hashes: %w", err)
		}
	}
	return nil
}
