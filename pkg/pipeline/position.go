package pipeline

import "github.com/askiada/clinic-pipeline/pkg/pipeline/model"

// EndOfStage returns the target index that puts itemID right after the last item of stage.
// When no other item is in the stage, an item already there stays where it is and any other item goes
// to the end of the list.
func EndOfStage(items []model.Item, itemID, stage string) int {
	pos, self := -1, -1
	n := 0
	for i, it := range items {
		if it.ID == itemID {
			if it.Stage == stage {
				self = i
			}

			continue
		}
		if it.Stage == stage {
			pos = n
		}
		n++
	}
	switch {
	case pos >= 0:
		return pos + 1
	case self >= 0:
		return self
	}

	return n
}
