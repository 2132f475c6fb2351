package synthesis

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"
)

const (
	// DefaultThreshold is the minimum cosine similarity for a link.
	DefaultThreshold = 0.78
	// DefaultTopK caps how many links an entity may participate in.
	DefaultTopK = 5
	// DefaultMaxLinks caps links per synthesis pass.
	DefaultMaxLinks = 50

	// allPairsLimit bounds the exact O(n^2) comparison; above it,
	// candidate pairs come from shared-feature buckets instead.
	allPairsLimit = 200
	topFeatures   = 24
	maxBucketSize = 60
)

// Engine computes similarity links over a vault store.
type Engine struct {
	Store *vault.Store
}

// NewEngine builds a synthesis engine.
func NewEngine(store *vault.Store) *Engine {
	return &Engine{Store: store}
}

// Options configures a synthesis pass. Zero values take the defaults;
// Persist=false computes links without writing them.
type Options struct {
	Threshold float64
	TopK      int
	MaxLinks  int
	Persist   bool
}

// LinkScore is one scored pair, source id lexicographically before
// target id.
type LinkScore struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Score    float64 `json:"score"`
}

// Result summarizes a synthesis pass.
type Result struct {
	Entities  int         `json:"entities"`
	Links     []LinkScore `json:"links"`
	Persisted int         `json:"persisted"`
}

type entity struct {
	id   string
	text string
	vec  []float32
}

// Synthesize embeds every finding and artifact on (project, branch) and
// links pairs whose cosine similarity clears the threshold. Fewer than
// two entities yields an empty result. Embeddings are cached in the
// database and reused while the entity's content hash is unchanged.
func (e *Engine) Synthesize(ctx context.Context, projectID, branch string, opts Options) (*Result, error) {
	branchID, err := e.Store.ResolveBranchID(ctx, projectID, branch)
	if err != nil {
		return nil, err
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxLinks := opts.MaxLinks
	if maxLinks <= 0 {
		maxLinks = DefaultMaxLinks
	}

	entities, err := e.gatherEntities(ctx, projectID, branchID)
	if err != nil {
		return nil, err
	}
	if len(entities) < 2 {
		return &Result{Entities: len(entities)}, nil
	}

	for i := range entities {
		vec, err := e.entityVector(ctx, &entities[i])
		if err != nil {
			return nil, err
		}
		entities[i].vec = vec
	}

	candidates := candidatePairs(entities)

	var scored []LinkScore
	for _, pair := range candidates {
		a, b := &entities[pair[0]], &entities[pair[1]]
		score := Cosine(a.vec, b.vec)
		if score < threshold {
			continue
		}
		src, dst := a.id, b.id
		if dst < src {
			src, dst = dst, src
		}
		scored = append(scored, LinkScore{SourceID: src, TargetID: dst, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].SourceID != scored[j].SourceID {
			return scored[i].SourceID < scored[j].SourceID
		}
		return scored[i].TargetID < scored[j].TargetID
	})

	degree := map[string]int{}
	var links []LinkScore
	for _, l := range scored {
		if len(links) >= maxLinks {
			break
		}
		if degree[l.SourceID] >= topK || degree[l.TargetID] >= topK {
			continue
		}
		links = append(links, l)
		degree[l.SourceID]++
		degree[l.TargetID]++
	}

	result := &Result{Entities: len(entities), Links: links}
	if opts.Persist && len(links) > 0 {
		persisted, err := e.persistLinks(ctx, branchID, links)
		if err != nil {
			return nil, err
		}
		result.Persisted = persisted

		err = e.Store.LogEvent(ctx, vault.EventParams{
			ProjectID: projectID,
			Branch:    branch,
			Type:      protocol.EventSynthesis,
			Step:      "run",
			Payload: map[string]any{
				"entities":  len(entities),
				"links":     len(links),
				"persisted": persisted,
				"threshold": threshold,
			},
			Source: "synthesis",
		})
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (e *Engine) gatherEntities(ctx context.Context, projectID, branchID string) ([]entity, error) {
	var entities []entity

	rows, err := e.Store.DB().QueryContext(ctx,
		"SELECT id, title, content FROM findings WHERE project_id=? AND branch_id=? ORDER BY created_at ASC",
		projectID, branchID)
	if err != nil {
		return nil, fmt.Errorf("gather findings: %w", err)
	}
	for rows.Next() {
		var id, title, content string
		if err := rows.Scan(&id, &title, &content); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		entities = append(entities, entity{id: id, text: title + "\n" + content})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = e.Store.DB().QueryContext(ctx,
		"SELECT id, path, metadata FROM artifacts WHERE project_id=? AND branch_id=? ORDER BY created_at ASC",
		projectID, branchID)
	if err != nil {
		return nil, fmt.Errorf("gather artifacts: %w", err)
	}
	for rows.Next() {
		var id, path, metadata string
		if err := rows.Scan(&id, &path, &metadata); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		entities = append(entities, entity{id: id, text: path + "\n" + metadata})
	}
	rows.Close()
	return entities, rows.Err()
}

// entityVector returns the entity's embedding, reusing the stored row
// when its content hash still matches.
func (e *Engine) entityVector(ctx context.Context, ent *entity) ([]float32, error) {
	hash := ContentHash(ent.text)

	var blob []byte
	var storedHash string
	err := e.Store.DB().QueryRowContext(ctx,
		"SELECT vector, content_hash FROM embeddings WHERE entity_type=? AND entity_id=? AND model=?",
		"vault_entity", ent.id, Model,
	).Scan(&blob, &storedHash)
	if err == nil && storedHash == hash {
		if vec := decodeVector(blob); vec != nil {
			return vec, nil
		}
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load embedding: %w", err)
	}

	vec := Embed(ent.text)
	err = vault.RetryOnLock(func() error {
		_, err := e.Store.DB().ExecContext(ctx,
			`INSERT OR REPLACE INTO embeddings (entity_type, entity_id, model, dims, vector, content_hash, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"vault_entity", ent.id, Model, Dims, encodeVector(vec), hash, vault.NowISO())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store embedding: %w", err)
	}
	return vec, nil
}

// candidatePairs returns index pairs to score. Small sets compare
// everything; large sets only compare entities sharing a strong
// feature bucket, which keeps the pass near-linear in practice.
func candidatePairs(entities []entity) [][2]int {
	n := len(entities)
	if n <= allPairsLimit {
		pairs := make([][2]int, 0, n*(n-1)/2)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, [2]int{i, j})
			}
		}
		return pairs
	}

	buckets := map[int][]int{}
	for i := range entities {
		for _, f := range topFeatureIndexes(entities[i].vec, topFeatures) {
			buckets[f] = append(buckets[f], i)
		}
	}

	seen := map[[2]int]struct{}{}
	var pairs [][2]int
	for _, members := range buckets {
		if len(members) < 2 || len(members) > maxBucketSize {
			continue
		}
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				p := [2]int{members[x], members[y]}
				if p[0] > p[1] {
					p[0], p[1] = p[1], p[0]
				}
				if _, dup := seen[p]; dup {
					continue
				}
				seen[p] = struct{}{}
				pairs = append(pairs, p)
			}
		}
	}
	return pairs
}

func topFeatureIndexes(vec []float32, limit int) []int {
	type feature struct {
		index int
		mag   float64
	}
	features := make([]feature, 0, len(vec))
	for i, v := range vec {
		if v != 0 {
			features = append(features, feature{index: i, mag: math.Abs(float64(v))})
		}
	}
	sort.Slice(features, func(i, j int) bool {
		if features[i].mag != features[j].mag {
			return features[i].mag > features[j].mag
		}
		return features[i].index < features[j].index
	})
	if len(features) > limit {
		features = features[:limit]
	}
	indexes := make([]int, len(features))
	for i, f := range features {
		indexes[i] = f.index
	}
	return indexes
}

func (e *Engine) persistLinks(ctx context.Context, branchID string, links []LinkScore) (int, error) {
	persisted := 0
	for _, l := range links {
		meta, err := json.Marshal(map[string]any{
			"score":     l.Score,
			"model":     Model,
			"dims":      Dims,
			"branch_id": branchID,
		})
		if err != nil {
			return persisted, fmt.Errorf("marshal link metadata: %w", err)
		}
		err = vault.RetryOnLock(func() error {
			_, err := e.Store.DB().ExecContext(ctx,
				`INSERT OR REPLACE INTO links (source_id, target_id, link_type, metadata, created_at)
				 VALUES (?, ?, ?, ?, ?)`,
				l.SourceID, l.TargetID, protocol.SynthesisLinkType, string(meta), vault.NowISO())
			return err
		})
		if err != nil {
			return persisted, fmt.Errorf("persist link: %w", err)
		}
		persisted++
	}
	return persisted, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
