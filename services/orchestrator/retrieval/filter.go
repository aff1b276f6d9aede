// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import "log/slog"

// Relevance filtering defaults. Scores follow the cosine-distance
// convention: lower means more similar.
const (
	// DefaultThreshold is the distance above which a candidate is
	// considered too weak to ground an answer.
	DefaultThreshold = 1.5

	// DefaultMinDocs is the floor of documents returned whenever at least
	// one candidate exists, regardless of score.
	DefaultMinDocs = 1
)

// NoKnowledgeMarker is substituted for the knowledge section of a prompt
// when retrieval produced no candidates at all. Callers must never hand the
// model an empty section.
const NoKnowledgeMarker = "No relevant knowledge found for this question."

// FilterRelevant decides which retrieved candidates are worth injecting
// into the prompt.
//
// # Description
//
// Candidates must already be sorted best-first by the retrieval service.
// Every candidate with Score <= threshold is kept. If fewer than minDocs
// survive and at least one candidate existed, the first minDocs candidates
// are taken regardless of score — the model always receives some grounding
// context, trading precision for recall. With no candidates the result is
// empty and the caller substitutes NoKnowledgeMarker.
//
// The function is pure and deterministic: identical inputs always produce
// identical outputs, and the inputs are never mutated.
//
// # Inputs
//
//   - docs: Candidates sorted best (lowest distance) first.
//   - threshold: Cosine-distance cutoff; non-positive values use
//     DefaultThreshold.
//   - minDocs: Result floor; non-positive values use DefaultMinDocs.
//
// # Outputs
//
//   - []ScoredDocument: The kept candidates, original order preserved.
func FilterRelevant(docs []ScoredDocument, threshold float64, minDocs int) []ScoredDocument {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if minDocs <= 0 {
		minDocs = DefaultMinDocs
	}

	if len(docs) == 0 {
		return nil
	}

	kept := make([]ScoredDocument, 0, len(docs))
	for _, d := range docs {
		if d.Score <= threshold {
			kept = append(kept, d)
		}
	}

	if len(kept) < minDocs {
		n := minDocs
		if n > len(docs) {
			n = len(docs)
		}
		slog.Debug("No candidates under threshold, falling back to best-effort floor",
			"threshold", threshold,
			"floor", n,
		)
		kept = append(kept[:0], docs[:n]...)
	}
	return kept
}
