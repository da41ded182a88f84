package curriculum

import "sort"

// NextOrderForInsert returns max(existing)+1, or 1 for an empty course
func NextOrderForInsert(existing []int) int {
	if len(existing) == 0 {
		return 1
	}
	max := existing[0]
	for _, o := range existing[1:] {
		if o > max {
			max = o
		}
	}
	return max + 1
}

// ApplyReorder assigns orders 1..N following the position of each id in next.
// next must be a permutation of current.
func ApplyReorder(current, next []string) (map[string]int, error) {
	if len(current) != len(next) {
		return nil, ErrInvalidReorderSet
	}
	known := make(map[string]bool, len(current))
	for _, id := range current {
		known[id] = true
	}
	if len(known) != len(current) {
		return nil, ErrInvalidReorderSet
	}

	orders := make(map[string]int, len(next))
	for i, id := range next {
		if !known[id] {
			return nil, ErrInvalidReorderSet
		}
		if _, dup := orders[id]; dup {
			return nil, ErrInvalidReorderSet
		}
		orders[id] = i + 1
	}
	return orders, nil
}

// ValidateSequence reports whether all orders are pairwise distinct
func ValidateSequence(orders []int) bool {
	seen := make(map[int]struct{}, len(orders))
	for _, o := range orders {
		if _, ok := seen[o]; ok {
			return false
		}
		seen[o] = struct{}{}
	}
	return true
}

// Sequence lesson ids ordered by order ascending
func Sequence(lessons []*LessonModel) []string {
	sorted := make([]*LessonModel, len(lessons))
	copy(sorted, lessons)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	ids := make([]string, len(sorted))
	for i, l := range sorted {
		ids[i] = l.ID
	}
	return ids
}

func lessonOrders(lessons []*LessonModel) []int {
	orders := make([]int, len(lessons))
	for i, l := range lessons {
		orders[i] = l.Order
	}
	return orders
}

func assignedOrders(assignments map[string]int) []int {
	orders := make([]int, 0, len(assignments))
	for _, o := range assignments {
		orders = append(orders, o)
	}
	return orders
}
