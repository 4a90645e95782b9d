package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"table1837/internal/checklist"
	"table1837/internal/domain"
	"table1837/internal/engine"
)

func checklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checklist",
		Short: "Shift checklists",
	}
	cmd.AddCommand(checklistShowCmd())
	cmd.AddCommand(checklistToggleCmd())
	cmd.AddCommand(checklistResetCmd())
	return cmd
}

func checklistShowCmd() *cobra.Command {
	var hour int
	var status string
	cmd := &cobra.Command{
		Use:   "show [checklist-id]",
		Short: "Show checklists active at --hour, or one checklist by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := checklist.Filter(status)
			switch filter {
			case checklist.FilterAll, checklist.FilterPending, checklist.FilterCompleted:
			default:
				return fmt.Errorf("--status must be all, pending or completed")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var lists []domain.Checklist
				if len(args) == 1 {
					cl, err := e.Checklist(ctx, args[0])
					if err != nil {
						return err
					}
					lists = []domain.Checklist{cl}
				} else {
					var err error
					if lists, err = e.Checklists(ctx, hour); err != nil {
						return err
					}
				}
				for i := range lists {
					lists[i].Items = checklist.FilterTasks(lists[i].Items, filter)
				}
				if viper.GetBool("json") {
					return printJSON(lists)
				}
				for _, cl := range lists {
					fmt.Printf("%s (%s) %.0f%% complete\n", cl.Name, cl.ID, cl.CompletionRate)
					tw := newTable("Task", "Description", "Category", "Priority", "Min", "Needs", "Done by")
					for _, t := range cl.Items {
						tw.AppendRow(table.Row{t.ID, t.Task, t.Category, t.Priority, t.EstimatedTime, strings.Join(t.Dependencies, ","), t.CompletedBy})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&hour, "hour", -1, "only checklists active at this hour (0-23)")
	cmd.Flags().StringVar(&status, "status", string(checklist.FilterAll), "all, pending or completed")
	return cmd
}

func checklistToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <checklist-id> <task-id>",
		Short: "Complete or reopen a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c := remoteClient(); c != nil {
				cl, err := c.ToggleTask(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(cl)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cl, err := e.ToggleTask(ctx, args[0], args[1], principal())
				if err != nil {
					return err
				}
				return printJSONOrTable(cl)
			})
		},
	}
}

func checklistResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [checklist-id]",
		Short: "Clear completions for one checklist or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.ResetChecklists(ctx, id, principal())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"cleared": n})
			})
		},
	}
}

func pourCostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pourcost",
		Short: "Cocktail pour cost",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Cost breakdown for every menu cocktail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.Cocktails(ctx, principal())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := newTable("ID", "Name", "Price", "Cost", "Cost %", "Margin %", "Status")
				for _, c := range list.Cocktails {
					b := c.Breakdown
					tw.AppendRow(table.Row{c.ID, c.Name, fmt.Sprintf("%.2f", c.MenuPrice), fmt.Sprintf("%.2f", b.Cost), fmt.Sprintf("%.1f", b.CostPercent), fmt.Sprintf("%.1f", b.Margin), b.Status})
				}
				tw.AppendFooter(table.Row{"", "Average", "", "", fmt.Sprintf("%.1f", list.AverageCostPercent), "", ""})
				tw.Render()
				return nil
			})
		},
	})
	var file string
	calc := &cobra.Command{
		Use:   "calc [cocktail-id]",
		Short: "Price a menu cocktail, or an ad hoc recipe with --file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && len(args) == 0 {
				return fmt.Errorf("a cocktail id or --file is required")
			}
			if c := remoteClient(); c != nil && file == "" {
				res, err := c.CocktailPourCost(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					res engine.PourCostResult
					err error
				)
				if file != "" {
					var recipe domain.Cocktail
					data, rerr := os.ReadFile(file)
					if rerr != nil {
						return rerr
					}
					if err := yaml.Unmarshal(data, &recipe); err != nil {
						return fmt.Errorf("parse %s: %w", file, err)
					}
					res, err = e.PourCost(ctx, recipe, principal())
				} else {
					res, err = e.CocktailPourCost(ctx, args[0], principal())
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	calc.Flags().StringVarP(&file, "file", "f", "", "YAML recipe to price")
	cmd.AddCommand(calc)
	return cmd
}

func paletteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "palette [query]",
		Short: "Search the command palette",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if c := remoteClient(); c != nil {
				cmds, err := c.Palette(cmd.Context(), query)
				if err != nil {
					return err
				}
				return printJSONOrTable(cmds)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cmds, err := e.Palette(principal(), query)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cmds)
				}
				tw := newTable("ID", "Label", "Category", "Shortcut")
				for _, c := range cmds {
					tw.AppendRow(table.Row{c.ID, c.Label, c.Category, c.Shortcut})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "API keys for devices and integrations",
	}
	var forActor, keyName string
	var roles []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a key; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plain, key, err := e.CreateAPIKey(ctx, forActor, keyName, roles, principal())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"roles":    roles,
					"key":      plain,
				})
			})
		},
	}
	create.Flags().StringVar(&forActor, "for", "", "actor id the key acts as")
	create.Flags().StringVar(&keyName, "key-name", "", "label for the key")
	create.Flags().StringSliceVar(&roles, "grant", []string{"Server"}, "roles carried by the key")
	_ = create.MarkFlagRequired("for")
	cmd.AddCommand(create)

	var listFor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List issued keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.APIKeys(ctx, listFor, principal())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Actor", "Name", "Roles", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.Roles, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listFor, "for", "", "only keys of this actor")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0], principal())
			})
		},
	})
	return cmd
}
