package volume

import "github.com/ctlcore/supervisor/internal/ctlerr"

// placeBudget tracks the free-space ledger for one storage place,
// accounted under the Manager's volumes lock. spec.md §4.5: claiming
// debits size from the place's free budget transactionally; a debit
// that would push free below the sum of guarantees already held by
// peers on the same place fails with NoSpace.
type placeBudget struct {
	totalFree      int64
	claimed        int64
	guaranteeTotal int64
}

// claim attempts to debit size from the budget, respecting that
// remaining free space must not drop below the sum of guarantees
// outstanding among peers sharing this place (spec.md §3: "The union of
// claimed_space across all volumes sharing a place must not exceed the
// underlying free space + already-claimed").
func (b *placeBudget) claim(size, guarantee int64) error {
	freeAfter := b.totalFree - b.claimed - size
	if freeAfter < b.guaranteeTotal+guarantee {
		return ctlerr.New(ctlerr.NoSpace, "claiming %d would violate place guarantees (free after: %d, guarantees: %d)",
			size, freeAfter, b.guaranteeTotal+guarantee)
	}
	b.claimed += size
	b.guaranteeTotal += guarantee
	return nil
}

func (b *placeBudget) release(size, guarantee int64) {
	b.claimed -= size
	b.guaranteeTotal -= guarantee
	if b.claimed < 0 {
		b.claimed = 0
	}
	if b.guaranteeTotal < 0 {
		b.guaranteeTotal = 0
	}
}
