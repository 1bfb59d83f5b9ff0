package inventory

import "sort"

// Result is the difference between two inventories. Every slice holds sorted IDs.
type Result struct {
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Changed   []string `json:"changed"`
	Unchanged []string `json:"unchanged"`
}

// Diff compares current against previous. A nil previous inventory
// reports every current item as added.
func Diff(previous, current *Inventory) *Result {
	d := &Result{}
	var prevItems, curItems map[string]Item
	if previous != nil {
		prevItems = previous.Items
	}
	if current != nil {
		curItems = current.Items
	}

	for id, item := range curItems {
		old, ok := prevItems[id]
		switch {
		case !ok:
			d.Added = append(d.Added, id)
		case old.Hash != item.Hash || old.GVK != item.GVK || old.Namespace != item.Namespace:
			d.Changed = append(d.Changed, id)
		default:
			d.Unchanged = append(d.Unchanged, id)
		}
	}
	for id := range prevItems {
		if _, ok := curItems[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	sort.Strings(d.Unchanged)
	return d
}

// Empty reports whether nothing was added, removed or changed
func (d *Result) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// PruneCandidates returns the previous items no longer rendered, in ID order
func (d *Result) PruneCandidates(previous *Inventory) []Item {
	items := make([]Item, 0, len(d.Removed))
	for _, id := range d.Removed {
		if item, ok := previous.Get(id); ok {
			items = append(items, item)
		}
	}
	return items
}
