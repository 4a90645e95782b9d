package engine

import (
	"context"
	"database/sql"
	"fmt"

	"table1837/internal/domain"
	"table1837/internal/eightysix"
	"table1837/internal/engine/auth"
	"table1837/internal/events"
	"table1837/internal/realtime"
)

const entityItem = "eightysix_item"

type AddItemOptions struct {
	Draft eightysix.Draft
	Actor auth.Principal
}

// AddItem puts an item on the 86 list. The server assigns the id and
// addedAt; any client id is ignored.
func (e Engine) AddItem(ctx context.Context, opts AddItemOptions) (domain.EightySixItem, error) {
	if err := e.require(opts.Actor, auth.Edit86); err != nil {
		return domain.EightySixItem{}, err
	}
	item, err := eightysix.NewItem(opts.Draft, opts.Actor.DisplayName(), e.now())
	if err != nil {
		return domain.EightySixItem{}, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertItem(ctx, tx, item); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		_, err := e.Events.Append(ctx, tx, events.ItemAdded, realtime.Channel86List, entityItem, item.ID, opts.Actor.ActorID, events.EventPayload{
			"name":     item.Name,
			"category": item.Category,
			"added_by": item.AddedBy,
			"reason":   item.Reason,
		})
		return err
	})
	if err != nil {
		return domain.EightySixItem{}, err
	}
	e.Metrics.Items86.Inc()
	e.broadcast(ctx, realtime.Channel86List, realtime.EventItemAdded, eightysix.Added(item))
	e.logger().Info("item 86'd", "item", item.ID, "name", item.Name, "by", item.AddedBy)
	return item, nil
}

// RemoveItem takes an item off the list. Unknown ids return repo.ErrNotFound.
func (e Engine) RemoveItem(ctx context.Context, id string, actor auth.Principal) error {
	if err := e.require(actor, auth.Edit86); err != nil {
		return err
	}
	var removed domain.EightySixItem
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		it, err := e.Repo.GetItem(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("item %s: %w", id, err)
		}
		removed = it
		if err := e.Repo.DeleteItem(ctx, tx, id); err != nil {
			return fmt.Errorf("item %s: %w", id, err)
		}
		_, err = e.Events.Append(ctx, tx, events.ItemRemoved, realtime.Channel86List, entityItem, id, actor.ActorID, events.EventPayload{
			"name":       it.Name,
			"removed_by": actor.DisplayName(),
		})
		return err
	})
	if err != nil {
		return err
	}
	e.Metrics.Items86.Dec()
	msg := eightysix.Removed(id)
	msg.RemovedBy = actor.DisplayName()
	e.broadcast(ctx, realtime.Channel86List, realtime.EventItemRemoved, msg)
	e.logger().Info("item back on menu", "item", id, "name", removed.Name, "by", actor.DisplayName())
	return nil
}

func (e Engine) ListItems(ctx context.Context) ([]domain.EightySixItem, error) {
	items, err := e.Repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	e.Metrics.Items86.Set(float64(len(items)))
	return items, nil
}

// FullSync is the snapshot sent to every new 86-list session.
func (e Engine) FullSync(ctx context.Context) (eightysix.Message, error) {
	items, err := e.ListItems(ctx)
	if err != nil {
		return eightysix.Message{}, err
	}
	return eightysix.Sync(items), nil
}

// HandleRequest serves the legacy ADD_ITEM/REMOVE_ITEM frames a raw socket
// session may send on the 86-list channel. Malformed requests are consumed
// with an error; other payloads are left for the hub to broadcast.
func (e Engine) HandleRequest(ctx context.Context, actor auth.Principal, data []byte) (bool, error) {
	msg, err := eightysix.Decode(data)
	if err != nil {
		if eightysix.IsRequest(data) {
			return true, err
		}
		return false, nil
	}
	switch msg.Type {
	case eightysix.AddItemRequest:
		_, err := e.AddItem(ctx, AddItemOptions{
			Draft: eightysix.Draft{
				Name:            msg.Item.Name,
				Category:        msg.Item.Category,
				Reason:          msg.Item.Reason,
				EstimatedReturn: msg.Item.EstimatedReturn,
			},
			Actor: actor,
		})
		return true, err
	case eightysix.RemoveItemRequest:
		return true, e.RemoveItem(ctx, msg.ItemID, actor)
	default:
		return false, nil
	}
}
