package eightysix

import "table1837/internal/domain"

// Apply returns the collection that results from applying msg to items.
// The input slice is never modified. Request messages (ADD_ITEM,
// REMOVE_ITEM) are not authoritative and leave the collection unchanged.
func Apply(items []domain.EightySixItem, msg Message) []domain.EightySixItem {
	switch msg.Type {
	case ItemAdded:
		if msg.Item == nil || indexOf(items, msg.Item.ID) >= 0 {
			return items
		}
		out := make([]domain.EightySixItem, len(items), len(items)+1)
		copy(out, items)
		return append(out, *msg.Item)
	case ItemRemoved:
		idx := indexOf(items, msg.ItemID)
		if idx < 0 {
			return items
		}
		out := make([]domain.EightySixItem, 0, len(items)-1)
		out = append(out, items[:idx]...)
		return append(out, items[idx+1:]...)
	case FullSync:
		out := make([]domain.EightySixItem, len(msg.Items))
		copy(out, msg.Items)
		return out
	default:
		return items
	}
}

func indexOf(items []domain.EightySixItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
