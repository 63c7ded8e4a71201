package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Embedding is a stored vector for one entity.
type Embedding struct {
	EntityID string
	Model    string
	Vector   []float32
}

const embeddingsBatchSize = 999 / 5

// UpsertEmbeddings writes vectors keyed by (project, entity id).
func (s *Store) UpsertEmbeddings(project, model string, vectors map[string][]float32) error {
	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i := 0; i < len(ids); i += embeddingsBatchSize {
		end := min(i+embeddingsBatchSize, len(ids))
		var sb strings.Builder
		sb.WriteString("INSERT INTO embeddings (project, entity_id, model, dims, vector) VALUES ")
		args := make([]any, 0, (end-i)*5)
		for j, id := range ids[i:end] {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?,?,?,?,?)")
			v := vectors[id]
			args = append(args, project, id, model, len(v), encodeEmbedding(v))
		}
		sb.WriteString(" ON CONFLICT(project, entity_id) DO UPDATE SET model=excluded.model, dims=excluded.dims, vector=excluded.vector")
		if _, err := s.q.Exec(sb.String(), args...); err != nil {
			return fmt.Errorf("upsert embeddings: %w", err)
		}
	}
	return nil
}

// GetEmbedding returns the vector of one entity, or nil.
func (s *Store) GetEmbedding(project, entityID string) (*Embedding, error) {
	rows, err := s.q.Query("SELECT entity_id, model, vector FROM embeddings WHERE project=? AND entity_id=?", project, entityID)
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var e Embedding
	var buf []byte
	if err := rows.Scan(&e.EntityID, &e.Model, &buf); err != nil {
		return nil, err
	}
	e.Vector = decodeEmbedding(buf)
	return &e, nil
}

// Match is a node scored against a query.
type Match struct {
	Node  *Node   `json:"node"`
	Score float64 `json:"score"`
}

// SimilarTo ranks the project's embedded entities by cosine similarity to
// query and returns the best limit matches.
func (s *Store) SimilarTo(project string, query []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.q.Query("SELECT entity_id, vector FROM embeddings WHERE project=?", project)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	type scored struct {
		id    string
		score float64
	}
	var all []scored
	for rows.Next() {
		var id string
		var buf []byte
		if err := rows.Scan(&id, &buf); err != nil {
			rows.Close()
			return nil, err
		}
		all = append(all, scored{id, cosineSimilarity(query, decodeEmbedding(buf))})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]Match, 0, len(all))
	for _, sc := range all {
		n, err := s.FindNodeByID(project, sc.id)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, Match{Node: n, Score: sc.score})
		}
	}
	return out, nil
}

func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
