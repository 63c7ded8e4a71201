package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/zadzanl/graph-codebase-mcp-extend/internal/graph"
)

// Snapshot is the complete graph of one project run.
type Snapshot struct {
	Project       string
	RootPath      string
	RunID         string
	Entities      []*graph.Entity
	Relationships []graph.Relationship
	// FileHashes maps relative paths to content hashes for incremental skip.
	FileHashes map[string]string
	Model      string
	Embeddings map[string][]float32
}

// Save replaces the stored graph of snap.Project in one transaction.
// Saving the same snapshot twice leaves the database unchanged.
func (s *Store) Save(snap Snapshot) error {
	t := time.Now()
	err := s.WithTransaction(func(tx *Store) error {
		if err := tx.UpsertProject(snap.Project, snap.RootPath, snap.RunID); err != nil {
			return err
		}
		if err := tx.DeleteGraph(snap.Project); err != nil {
			return err
		}
		if err := tx.UpsertEntities(snap.Project, snap.Entities); err != nil {
			return err
		}
		if err := tx.UpsertRelationships(snap.Project, snap.Relationships); err != nil {
			return err
		}
		if len(snap.Embeddings) > 0 {
			if err := tx.UpsertEmbeddings(snap.Project, snap.Model, snap.Embeddings); err != nil {
				return err
			}
		}
		return tx.ReplaceFileHashes(snap.Project, snap.FileHashes)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", snap.Project, err)
	}
	slog.Info("store.saved", "project", snap.Project, "entities", len(snap.Entities),
		"relationships", len(snap.Relationships), "embeddings", len(snap.Embeddings), "elapsed", time.Since(t))
	return nil
}
