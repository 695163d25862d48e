package llm

import "sort"

// PlannedBatch is one provider-sized unit of work: the groups it covers and
// their estimated token cost. Consumed immediately by the service; only the
// resulting cache entry persists.
type PlannedBatch struct {
	Groups          []ItemGroup
	EstimatedTokens int
}

// BatchPlan is the planner's full output. Every input item appears either
// in a batch or in the skip list, never both and never neither.
type BatchPlan struct {
	Batches []PlannedBatch
	Skipped []SkippedItem
}

// Planner slices item groups into provider-sized batches.
type Planner struct {
	maxPayloadTokens int
	batchSize        int
}

// NewPlanner creates a planner. maxPayloadTokens bounds extended-context
// batches; batchSize bounds count-based batches.
func NewPlanner(maxPayloadTokens, batchSize int) *Planner {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Planner{
		maxPayloadTokens: maxPayloadTokens,
		batchSize:        batchSize,
	}
}

// defaultBatchSize is the count-based chunk size when none is configured.
const defaultBatchSize = 50

// Plan splits groups into batches under the given mode.
func (p *Planner) Plan(groups []ItemGroup, mode BatchingMode) BatchPlan {
	if mode == ModeExtendedContext {
		return p.planExtendedContext(groups)
	}
	return p.planCountBased(groups)
}

// planCountBased flattens all items in input order and slices them into
// fixed-size chunks. Per-group content is discarded; items are assumed
// independent. Deterministic and order-preserving.
func (p *Planner) planCountBased(groups []ItemGroup) BatchPlan {
	var all []Item
	for _, group := range groups {
		all = append(all, group.Items...)
	}

	var batches []PlannedBatch
	for start := 0; start < len(all); start += p.batchSize {
		end := start + p.batchSize
		if end > len(all) {
			end = len(all)
		}
		chunk := all[start:end]
		batches = append(batches, PlannedBatch{
			Groups:          []ItemGroup{{Items: chunk}},
			EstimatedTokens: len(chunk) * tokensPerItem,
		})
	}

	return BatchPlan{Batches: batches}
}

// planExtendedContext keeps groups intact and bin-packs them by estimated
// tokens using first-fit decreasing. Groups that cannot be processed are
// skipped with a reason rather than dropped.
func (p *Planner) planExtendedContext(groups []ItemGroup) BatchPlan {
	var skipped []SkippedItem

	type sizedGroup struct {
		group  ItemGroup
		tokens int
		order  int
	}
	var sized []sizedGroup

	for i, group := range groups {
		// Items without a resolvable source cannot be validated against
		// content; skip them individually before sizing the group.
		var usable []Item
		for _, item := range group.Items {
			if item.SourceID == "" {
				skipped = append(skipped, SkippedItem{Item: item, Reason: SkipNoSource})
				continue
			}
			usable = append(usable, item)
		}
		if len(usable) == 0 {
			continue
		}

		if group.Content == "" {
			for _, item := range usable {
				skipped = append(skipped, SkippedItem{Item: item, Reason: SkipMissingContent})
			}
			continue
		}

		tokens := estimateTokens(group.Content) + len(usable)*tokensPerItem
		if tokens > p.maxPayloadTokens {
			for _, item := range usable {
				skipped = append(skipped, SkippedItem{Item: item, Reason: SkipOversized})
			}
			continue
		}

		sized = append(sized, sizedGroup{
			group:  ItemGroup{Items: usable, Content: group.Content, GroupID: group.GroupID},
			tokens: tokens,
			order:  i,
		})
	}

	// Largest first packs tighter; input order breaks ties so plans are
	// deterministic.
	sort.SliceStable(sized, func(i, j int) bool {
		if sized[i].tokens != sized[j].tokens {
			return sized[i].tokens > sized[j].tokens
		}
		return sized[i].order < sized[j].order
	})

	var batches []PlannedBatch
	for _, sg := range sized {
		placed := false
		for i := range batches {
			if batches[i].EstimatedTokens+sg.tokens <= p.maxPayloadTokens {
				batches[i].Groups = append(batches[i].Groups, sg.group)
				batches[i].EstimatedTokens += sg.tokens
				placed = true
				break
			}
		}
		if !placed {
			batches = append(batches, PlannedBatch{
				Groups:          []ItemGroup{sg.group},
				EstimatedTokens: sg.tokens,
			})
		}
	}

	return BatchPlan{Batches: batches, Skipped: skipped}
}
