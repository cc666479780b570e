package search

import (
	"testing"

	"artelex-backend/models"

	"github.com/google/uuid"
)

func hit(id byte, level string) models.ChunkHit {
	var raw [16]byte
	raw[15] = id
	return models.ChunkHit{
		Chunk: models.DocumentChunk{
			ID: uuid.UUID(raw),
			Metadata: models.ChunkMetadata{
				AuthorityLevel: level,
			},
		},
	}
}

func noBoost() (map[string]float64, map[string]int) {
	return map[string]float64{}, map[string]int{}
}

func TestFuseRRFScores(t *testing.T) {
	a := hit(1, "")
	b := hit(2, "")
	c := hit(3, "")

	vec := []models.ChunkHit{a, b}
	lex := []models.ChunkHit{b, c}

	mult, rank := noBoost()
	fused := fuseRRF(vec, lex, 60, 0.6, 0.4, mult, rank, 10)

	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}

	// Ranks are 1-based: fused(c) = w_v/(κ+rank_V) + w_l/(κ+rank_L).
	//
	// a: vector rank 1            -> 0.6/61            ≈ 0.009836
	// b: vector rank 2, lex rank 1 -> 0.6/62 + 0.4/61  ≈ 0.016235
	// c: lex rank 2               -> 0.4/62            ≈ 0.006452
	scoreA := 0.6 / 61.0
	scoreB := 0.6/62.0 + 0.4/61.0
	scoreC := 0.4 / 62.0

	if fused[0].Chunk.ID != b.Chunk.ID {
		t.Errorf("expected chunk in both lists first, got %s", fused[0].Chunk.ID)
	}
	if fused[1].Chunk.ID != a.Chunk.ID {
		t.Errorf("expected vector-only chunk second, got %s", fused[1].Chunk.ID)
	}
	if fused[2].Chunk.ID != c.Chunk.ID {
		t.Errorf("expected lexical-only chunk last, got %s", fused[2].Chunk.ID)
	}

	const eps = 1e-9
	for i, want := range []float64{scoreB, scoreA, scoreC} {
		if diff := fused[i].Score - want; diff < -eps || diff > eps {
			t.Errorf("result %d score: got %f, want %f", i, fused[i].Score, want)
		}
	}
}

func TestFuseRRFAuthorityBoost(t *testing.T) {
	// Same single-list rank for both chunks except position, but the lower
	// ranked one is a Ley: 1.5 × 0.6/62 > 1.0 × 0.6/61, so it wins.
	doctrina := hit(1, models.AuthorityDoctrinaAdmin)
	ley := hit(2, models.AuthorityLey)

	vec := []models.ChunkHit{doctrina, ley}

	fused := fuseRRF(vec, nil, 60, 0.6, 0.4, defaultAuthorityMultipliers, defaultAuthorityRank, 10)

	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	if fused[0].Chunk.ID != ley.Chunk.ID {
		t.Errorf("expected Ley chunk reranked above Doctrina, got %s first", fused[0].Chunk.Metadata.AuthorityLevel)
	}
}

func TestFuseRRFUnknownAuthorityNeutral(t *testing.T) {
	known := hit(1, models.AuthorityJurisprudencia) // multiplier 0.9
	unknown := hit(2, "Circular")                   // not in the table -> 1.0

	vec := []models.ChunkHit{known, unknown}
	fused := fuseRRF(vec, nil, 60, 1.0, 0.0, defaultAuthorityMultipliers, defaultAuthorityRank, 10)

	// 0.9/61 < 1.0/62, so the unknown level wins despite the lower rank.
	if fused[0].Chunk.ID != unknown.Chunk.ID {
		t.Errorf("expected neutral multiplier for unknown authority level")
	}
}

func TestFuseRRFTieBreakByAuthority(t *testing.T) {
	ley := hit(1, models.AuthorityLey)
	orden := hit(2, models.AuthorityOrden)

	// Identical fused scores: each appears at rank 1 of one list with equal
	// weights and neutral multipliers.
	mult, _ := noBoost()
	fused := fuseRRF(
		[]models.ChunkHit{orden}, []models.ChunkHit{ley},
		60, 0.5, 0.5, mult, defaultAuthorityRank, 10,
	)

	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	if fused[0].Chunk.ID != ley.Chunk.ID {
		t.Errorf("expected tie broken in favour of the higher authority level")
	}
}

func TestFuseRRFCutsToK(t *testing.T) {
	var vec []models.ChunkHit
	for i := byte(1); i <= 10; i++ {
		vec = append(vec, hit(i, ""))
	}

	mult, rank := noBoost()
	fused := fuseRRF(vec, nil, 60, 0.6, 0.4, mult, rank, 4)

	if len(fused) != 4 {
		t.Fatalf("expected 4 results after cut, got %d", len(fused))
	}
	// Highest RRF scores are the lowest vector ranks.
	for i, h := range fused {
		if h.Chunk.ID != vec[i].Chunk.ID {
			t.Errorf("result %d: expected %s, got %s", i, vec[i].Chunk.ID, h.Chunk.ID)
		}
	}
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	mult, rank := noBoost()
	if got := fuseRRF(nil, nil, 60, 0.6, 0.4, mult, rank, 5); len(got) != 0 {
		t.Errorf("expected no results for empty inputs, got %d", len(got))
	}
}
