package graph

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// MergeProperties applies the node merge contract to an existing property map:
// scalar values are overwritten by the incoming value (last write wins),
// list-valued properties are unioned preserving first-seen order and
// uniqueness, and opaque blob values (raw content) are replaced outright.
// The result is a fresh map; neither input is mutated. Applying the same
// incoming map twice yields an identical result, which is what makes node
// upserts idempotent.
func MergeProperties(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for name, value := range existing {
		merged[name] = value
	}
	for name, value := range incoming {
		current, ok := merged[name]
		if !ok {
			merged[name] = value
			continue
		}
		merged[name] = mergeValue(current, value)
	}
	return merged
}

func mergeValue(existing, incoming any) any {
	switch incomingList := incoming.(type) {
	case []string:
		if existingList, ok := existing.([]string); ok {
			return UnionStrings(existingList, incomingList)
		}
	case []any:
		if existingList, ok := existing.([]any); ok {
			return unionValues(existingList, incomingList)
		}
	}
	return incoming
}

// UnionStrings unions two string lists, preserving first-seen order and
// dropping duplicates.
func UnionStrings(existing, incoming []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	union := make([]string, 0, len(existing)+len(incoming))
	for _, value := range existing {
		if seen.Add(value) {
			union = append(union, value)
		}
	}
	for _, value := range incoming {
		if seen.Add(value) {
			union = append(union, value)
		}
	}
	return union
}

func unionValues(existing, incoming []any) []any {
	seen := mapset.NewThreadUnsafeSet[string]()
	union := make([]any, 0, len(existing)+len(incoming))
	for _, value := range append(append([]any{}, existing...), incoming...) {
		text, ok := value.(string)
		if !ok {
			// Non-string list members have no cheap identity; keep them all.
			union = append(union, value)
			continue
		}
		if seen.Add(text) {
			union = append(union, value)
		}
	}
	return union
}

// MergeEdge applies the edge merge contract in place: confidence never
// decreases, the most recent snippet and raw match win, and the occurrence
// counter is incremented by the incoming detections.
func MergeEdge(existing *Edge, incoming Edge) {
	if incoming.Confidence > existing.Confidence {
		existing.Confidence = incoming.Confidence
	}
	if incoming.Meta.Snippet != "" {
		existing.Meta.Snippet = incoming.Meta.Snippet
	}
	if incoming.Meta.RawMatch != "" {
		existing.Meta.RawMatch = incoming.Meta.RawMatch
	}
	if incoming.Meta.Source != "" {
		existing.Meta.Source = incoming.Meta.Source
	}
	occurrences := incoming.Meta.Occurrences
	if occurrences <= 0 {
		occurrences = 1
	}
	existing.Meta.Occurrences += occurrences
}
