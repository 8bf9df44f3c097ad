package core

// SplitDiff classifies a desired split set against the stored one.
// Editing a transaction applies the three lists inside a single
// database transaction.
type SplitDiff struct {
	ToCreate []SplitInput
	ToUpdate []Split
	ToDelete []Split
}

// ReconcileSplits diffs desired splits against existing ones, keyed by
// category id: desired categories missing from the stored set are
// created, shared categories have their amount updated (even when
// unchanged, the update is a no-op write), and stored categories
// absent from the desired set are deleted.
func ReconcileSplits(existing []Split, desired []SplitInput) SplitDiff {
	existingByCategory := make(map[int64]Split, len(existing))
	for _, s := range existing {
		existingByCategory[s.CategoryID] = s
	}
	desiredCategories := make(map[int64]bool, len(desired))

	var diff SplitDiff
	for _, want := range desired {
		desiredCategories[want.CategoryID] = true
		have, ok := existingByCategory[want.CategoryID]
		if !ok {
			diff.ToCreate = append(diff.ToCreate, want)
			continue
		}
		have.Amount = want.Amount
		diff.ToUpdate = append(diff.ToUpdate, have)
	}
	for _, s := range existing {
		if !desiredCategories[s.CategoryID] {
			diff.ToDelete = append(diff.ToDelete, s)
		}
	}
	return diff
}
