package search

import (
	"sort"

	"artelex-backend/models"
)

// authorityMultipliers boosts fused scores by legal authority. The table
// is data, not control flow: the engine applies whatever table it is
// configured with, and unknown levels get 1.0.
var defaultAuthorityMultipliers = map[string]float64{
	models.AuthorityConstitucion:   2.0,
	models.AuthorityLey:            1.5,
	models.AuthorityRealDecretoLeg: 1.4,
	models.AuthorityRealDecreto:    1.3,
	models.AuthorityOrden:          1.1,
	models.AuthorityDoctrinaAdmin:  1.0,
	models.AuthorityJurisprudencia: 0.9,
}

// authorityRank orders levels for deterministic tie-breaking, highest
// authority first. Unknown levels sort last.
var defaultAuthorityRank = map[string]int{
	models.AuthorityConstitucion:   0,
	models.AuthorityLey:            1,
	models.AuthorityRealDecretoLeg: 2,
	models.AuthorityRealDecreto:    3,
	models.AuthorityOrden:          4,
	models.AuthorityDoctrinaAdmin:  5,
	models.AuthorityJurisprudencia: 6,
}

const unknownAuthorityRank = 7

// fuseRRF combines the vector and lexical result lists with Reciprocal
// Rank Fusion: fused(c) = w_v/(κ+rank_V) + w_l/(κ+rank_L), ranks 1-based,
// a missing list contributing zero. The fused score is then multiplied by
// the authority multiplier of the chunk's level, sorted descending, and
// cut to k. Ties break by authority rank, then vector distance, then
// chunk ID, so result order is deterministic.
func fuseRRF(
	vecHits, lexHits []models.ChunkHit,
	kappa, weightVec, weightLex float64,
	multipliers map[string]float64,
	rank map[string]int,
	k int,
) []models.ChunkHit {
	type fusedEntry struct {
		hit      models.ChunkHit
		score    float64
		distance float64
		hasVec   bool
	}

	fused := make(map[string]*fusedEntry)

	for i, h := range vecHits {
		key := h.Chunk.ID.String()
		entry, ok := fused[key]
		if !ok {
			entry = &fusedEntry{hit: h}
			fused[key] = entry
		}
		entry.score += weightVec / (kappa + float64(i+1))
		entry.distance = h.Distance
		entry.hasVec = true
	}

	for i, h := range lexHits {
		key := h.Chunk.ID.String()
		entry, ok := fused[key]
		if !ok {
			entry = &fusedEntry{hit: h}
			fused[key] = entry
		}
		entry.score += weightLex / (kappa + float64(i+1))
		entry.hit.Rank = h.Rank
	}

	authRank := func(level string) int {
		if r, ok := rank[level]; ok {
			return r
		}
		return unknownAuthorityRank
	}

	entries := make([]*fusedEntry, 0, len(fused))
	for _, e := range fused {
		mult, ok := multipliers[e.hit.Chunk.Metadata.AuthorityLevel]
		if !ok {
			mult = 1.0
		}
		e.score *= mult
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ra := authRank(a.hit.Chunk.Metadata.AuthorityLevel)
		rb := authRank(b.hit.Chunk.Metadata.AuthorityLevel)
		if ra != rb {
			return ra < rb
		}
		// Chunks seen only lexically carry no distance; they sort after
		// vector hits at the same score and authority.
		if a.hasVec != b.hasVec {
			return a.hasVec
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.hit.Chunk.ID.String() < b.hit.Chunk.ID.String()
	})

	if k > 0 && len(entries) > k {
		entries = entries[:k]
	}

	hits := make([]models.ChunkHit, len(entries))
	for i, e := range entries {
		hits[i] = e.hit
		hits[i].Score = e.score
		hits[i].Distance = e.distance
	}
	return hits
}
