package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

// ComputeStageTotals counts and sums items per stage, in the order of stageNames.
// Items in a stage that is not listed are ignored. With no stage names, stages are reported in the
// order they are first seen.
func ComputeStageTotals(items []model.Item, stageNames []string) []model.StageTotal {
	if stageNames == nil {
		seen := make(map[string]struct{})
		for _, it := range items {
			if _, ok := seen[it.Stage]; ok {
				continue
			}
			seen[it.Stage] = struct{}{}
			stageNames = append(stageNames, it.Stage)
		}
	}

	totals := make([]model.StageTotal, len(stageNames))
	pos := make(map[string]int, len(stageNames))
	for i, name := range stageNames {
		totals[i] = model.StageTotal{Stage: name, Sum: decimal.Zero}
		pos[name] = i
	}

	for _, it := range items {
		i, ok := pos[it.Stage]
		if !ok {
			continue
		}
		totals[i].Count++
		totals[i].Sum = totals[i].Sum.Add(it.Value)
	}

	return totals
}

// GroupByStage returns the items of every stage, keeping their relative order.
func GroupByStage(items []model.Item, stageNames []string) map[string][]model.Item {
	groups := make(map[string][]model.Item, len(stageNames))
	for _, name := range stageNames {
		groups[name] = nil
	}
	for _, it := range items {
		if _, ok := groups[it.Stage]; ok {
			groups[it.Stage] = append(groups[it.Stage], it)
		}
	}

	return groups
}
