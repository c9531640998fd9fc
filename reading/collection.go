package reading

import (
	"slices"
	"sort"
)

// Collection is the canonical list of readings, sorted by DateTime descending.
type Collection []Reading

// MergeStats describes what happened to an incoming batch during Merge.
type MergeStats struct {
	// Added is the number of incoming readings that made it into the collection.
	Added int `json:"added"`
	// Replaced is the number of existing readings removed because the incoming source replaces them.
	Replaced int `json:"replaced"`
	// Skipped is the number of incoming readings whose DateTime already existed.
	Skipped int `json:"skipped"`
	// Dropped is the number of incoming readings that were incomplete.
	Dropped int `json:"dropped"`
}

// Sort orders the collection newest first. Canonical timestamps order lexically, ties keep insertion order.
func (c Collection) Sort() {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].DateTime > c[j].DateTime
	})
}

// Contains reports whether a reading with the given DateTime exists.
func (c Collection) Contains(dateTime string) bool {
	return slices.ContainsFunc(c, func(r Reading) bool {
		return r.DateTime == dateTime
	})
}

// Clone returns a copy that can be mutated without affecting c.
func (c Collection) Clone() Collection {
	if c == nil {
		return Collection{}
	}
	return slices.Clone(c)
}

// Merge reconciles an incoming batch into the existing collection.
// Remote sources (fhir, smart-ehr) replace: all existing readings of that source are removed,
// as are readings of other sources whose DateTime collides with an incoming reading.
// All other sources append: incoming readings whose DateTime already exists are skipped.
// Neither input is modified.
func Merge(existing, incoming Collection, precedence Source) (Collection, MergeStats) {
	var stats MergeStats
	var batch Collection
	batchTimes := make(map[string]struct{}, len(incoming))
	for _, r := range incoming {
		if !r.Complete() {
			stats.Dropped++
			continue
		}
		if _, seen := batchTimes[r.DateTime]; seen {
			stats.Skipped++
			continue
		}
		batchTimes[r.DateTime] = struct{}{}
		batch = append(batch, r)
	}

	result := make(Collection, 0, len(existing)+len(batch))
	if precedence.IsRemote() {
		for _, r := range existing {
			if _, collides := batchTimes[r.DateTime]; r.Source == precedence || collides {
				stats.Replaced++
				continue
			}
			result = append(result, r)
		}
		result = append(result, batch...)
		stats.Added = len(batch)
	} else {
		existingTimes := make(map[string]struct{}, len(existing))
		for _, r := range existing {
			existingTimes[r.DateTime] = struct{}{}
		}
		result = append(result, existing...)
		for _, r := range batch {
			if _, exists := existingTimes[r.DateTime]; exists {
				stats.Skipped++
				continue
			}
			result = append(result, r)
			stats.Added++
		}
	}
	result.Sort()
	return result, stats
}

// Insert adds a single manually submitted reading. It fails with ErrDuplicateDateTime if the instant is already taken.
func Insert(existing Collection, r Reading) (Collection, error) {
	if existing.Contains(r.DateTime) {
		return existing, ErrDuplicateDateTime
	}
	result := append(existing.Clone(), r)
	result.Sort()
	return result, nil
}
