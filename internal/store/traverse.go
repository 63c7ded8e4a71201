package store

import (
	"fmt"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
)

// Direction of a traversal.
const (
	Outbound = "outbound"
	Inbound  = "inbound"
)

// TraverseResult holds BFS traversal results.
type TraverseResult struct {
	Root    *Node      `json:"root"`
	Visited []*NodeHop `json:"visited"`
	Edges   []EdgeInfo `json:"edges"`
}

// NodeHop is a node with its BFS hop distance.
type NodeHop struct {
	Node *Node `json:"node"`
	Hop  int   `json:"hop"`
}

// EdgeInfo is a simplified edge for output.
type EdgeInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

type bfsQueue struct {
	id  string
	hop int
}

func (s *Store) fetchEdgesForNode(project, id, direction string, kinds []string) ([]*Edge, error) {
	var edges []*Edge
	for _, k := range kinds {
		var found []*Edge
		var err error
		if direction == Outbound {
			found, err = s.FindEdgesBySource(project, id, k)
		} else {
			found, err = s.FindEdgesByTarget(project, id, k)
		}
		if err != nil {
			return nil, err
		}
		edges = append(edges, found...)
	}
	return edges, nil
}

// BFS performs breadth-first traversal from start following edges of the
// given kinds. maxDepth caps the depth, maxResults the visited nodes.
func (s *Store) BFS(project, start, direction string, kinds []string, maxDepth, maxResults int) (*TraverseResult, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxResults <= 0 {
		maxResults = 200
	}

	root, err := s.FindNodeByID(project, start)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("entity %q not found in project %q", start, project)
	}
	result := &TraverseResult{Root: root}
	visited := map[string]bool{start: true}
	queue := []bfsQueue{{start, 0}}

	for len(queue) > 0 && len(result.Visited) < maxResults {
		item := queue[0]
		queue = queue[1:]
		if item.hop >= maxDepth {
			continue
		}

		edges, err := s.fetchEdgesForNode(project, item.id, direction, kinds)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			next := e.TargetID
			if direction == Inbound {
				next = e.SourceID
			}
			result.Edges = append(result.Edges, EdgeInfo{From: e.SourceID, To: e.TargetID, Kind: e.Kind})
			if visited[next] {
				continue
			}
			visited[next] = true
			n, err := s.FindNodeByID(project, next)
			if err != nil {
				return nil, err
			}
			if n == nil {
				continue
			}
			result.Visited = append(result.Visited, &NodeHop{Node: n, Hop: item.hop + 1})
			queue = append(queue, bfsQueue{next, item.hop + 1})
			if len(result.Visited) >= maxResults {
				break
			}
		}
	}
	return result, nil
}

// Callers returns the functions that call id, up to depth hops away.
func (s *Store) Callers(project, id string, depth int) (*TraverseResult, error) {
	return s.BFS(project, id, Inbound, []string{string(graph.RelCalls)}, depth, 0)
}

// Callees returns the functions id calls, up to depth hops away.
func (s *Store) Callees(project, id string, depth int) (*TraverseResult, error) {
	return s.BFS(project, id, Outbound, []string{string(graph.RelCalls)}, depth, 0)
}

// Inheritance returns the parents (outbound) and children (inbound) of a
// class along EXTENDS edges.
func (s *Store) Inheritance(project, id string, depth int) (parents, children *TraverseResult, err error) {
	ext := []string{string(graph.RelExtends)}
	if parents, err = s.BFS(project, id, Outbound, ext, depth, 0); err != nil {
		return nil, nil, err
	}
	if children, err = s.BFS(project, id, Inbound, ext, depth, 0); err != nil {
		return nil, nil, err
	}
	return parents, children, nil
}

// FileDeps lists what a file imports and which entities import from it.
type FileDeps struct {
	File       *Node   `json:"file"`
	Imports    []*Node `json:"imports"`
	ImportedBy []*Node `json:"imported_by"`
}

// FileDependencies collects the IMPORTS edges leaving filePath and those
// arriving at the file or any entity it declares.
func (s *Store) FileDependencies(project, filePath string) (*FileDeps, error) {
	file, err := s.FindNodeByID(project, graph.FileID(filePath))
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("file %q not found in project %q", filePath, project)
	}
	deps := &FileDeps{File: file}

	out, err := s.FindEdgesBySource(project, file.ID, string(graph.RelImports))
	if err != nil {
		return nil, err
	}
	for _, e := range out {
		if n, err := s.FindNodeByID(project, e.TargetID); err != nil {
			return nil, err
		} else if n != nil {
			deps.Imports = append(deps.Imports, n)
		}
	}

	rows, err := s.q.Query(`
		SELECT DISTINCT r.source_id FROM relationships r
		JOIN entities t ON t.project = r.project AND t.id = r.target_id
		WHERE r.project=? AND r.kind=? AND t.file_path=? AND r.source_id != ?
		ORDER BY r.source_id`,
		project, string(graph.RelImports), filePath, file.ID)
	if err != nil {
		return nil, fmt.Errorf("imported by: %w", err)
	}
	var importers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		importers = append(importers, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range importers {
		if n, err := s.FindNodeByID(project, id); err != nil {
			return nil, err
		} else if n != nil {
			deps.ImportedBy = append(deps.ImportedBy, n)
		}
	}
	return deps, nil
}
