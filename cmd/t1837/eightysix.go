package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"table1837/internal/domain"
	"table1837/internal/eightysix"
	"table1837/internal/engine"
	"table1837/internal/realtime"
	table1837sdk "table1837/sdk/go"
)

func eightySixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "86",
		Aliases: []string{"eightysix"},
		Short:   "86 list: items that are out",
		Long:    "Commands run against the local workspace, or against a running server when --server is set.",
	}
	cmd.AddCommand(eightySixListCmd())
	cmd.AddCommand(eightySixAddCmd())
	cmd.AddCommand(eightySixRemoveCmd())
	cmd.AddCommand(eightySixWatchCmd())
	return cmd
}

func eightySixListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List 86'd items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := remoteClient(); c != nil {
				items, err := c.Items(cmd.Context())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Category", "Added by", "Added at", "Reason")
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Name, it.Category, it.AddedBy, it.AddedAt.Local().Format(time.Kitchen), it.Reason})
				}
				tw.Render()
				return nil
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListItems(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderItems(items)
				return nil
			})
		},
	}
}

func eightySixAddCmd() *cobra.Command {
	var category, reason, back string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "86 an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var eta *time.Time
			if back != "" {
				t, err := time.Parse(time.RFC3339, back)
				if err != nil {
					return fmt.Errorf("--back: %w", err)
				}
				eta = &t
			}
			if c := remoteClient(); c != nil {
				item, err := c.AddItem(cmd.Context(), table1837sdk.NewItem{Name: args[0], Category: category, Reason: reason, EstimatedReturn: eta})
				if err != nil {
					return err
				}
				return printJSONOrTable(item)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, err := e.AddItem(ctx, engine.AddItemOptions{
					Draft: eightysix.Draft{
						Name:            args[0],
						Category:        domain.Category(category),
						Reason:          reason,
						EstimatedReturn: eta,
					},
					Actor: principal(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(item)
			})
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", string(domain.CategoryFood), "food, cocktail, wine, beer or spirit")
	cmd.Flags().StringVar(&reason, "reason", "", "why the item is out")
	cmd.Flags().StringVar(&back, "back", "", "estimated return time (RFC3339)")
	return cmd
}

func eightySixRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Put an item back on the menu",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := remoteClient(); c != nil {
				return c.RemoveItem(cmd.Context(), args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveItem(ctx, args[0], principal())
			})
		},
	}
}

// eightySixWatchCmd follows the 86-list channel of a running server and
// redraws the list on every change.
func eightySixWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the live 86 list (requires --server)",
		RunE: func(cmd *cobra.Command, args []string) error {
			base := viper.GetString("server")
			if base == "" {
				return fmt.Errorf("--server is required for watch")
			}
			logger := newLogger()
			client, err := realtime.NewClient(base, logger.With("component", "realtime"))
			if err != nil {
				return err
			}
			defer client.Close()
			if token := viper.GetString("token"); token != "" {
				client.SetHeader("Authorization", "Bearer "+token)
			} else if key := viper.GetString("api-key"); key != "" {
				client.SetHeader("X-Api-Key", key)
			}

			store := eightysix.NewStore(logger, eightysix.NotifierFunc(func(n eightysix.Notification) {
				fmt.Fprintf(os.Stderr, "%s: %s\n", n.Title, n.Body)
			}))
			sub, err := client.Subscribe(cmd.Context(), realtime.Channel86List)
			if err != nil {
				return err
			}
			redraw := func(data json.RawMessage) {
				store.HandleMessage(data)
				if viper.GetBool("json") {
					_ = printJSON(store.Items())
					return
				}
				fmt.Printf("\n%d item(s) 86'd, updated %s\n", store.Len(), store.LastUpdate().Local().Format(time.Kitchen))
				renderItems(store.Items())
			}
			for _, evt := range []string{realtime.EventItemAdded, realtime.EventItemRemoved, realtime.EventListUpdated} {
				client.OnEvent(sub, evt, redraw)
			}
			select {
			case <-cmd.Context().Done():
			case <-sub.Done():
				return fmt.Errorf("connection to %s closed", base)
			}
			return nil
		},
	}
}

func renderItems(items []domain.EightySixItem) {
	tw := newTable("ID", "Name", "Category", "Added by", "Added at", "Reason")
	for _, it := range items {
		tw.AppendRow(table.Row{it.ID, it.Name, it.Category, it.AddedBy, it.AddedAt.Local().Format(time.Kitchen), it.Reason})
	}
	tw.Render()
}

func remoteClient() *table1837sdk.Client {
	base := viper.GetString("server")
	if base == "" {
		return nil
	}
	c := table1837sdk.New(base)
	c.BearerToken = viper.GetString("token")
	c.APIKey = viper.GetString("api-key")
	return c
}
