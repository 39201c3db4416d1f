package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectStatsCmd())
	prj.AddCommand(projectExportCmd())
	prj.AddCommand(projectImportCmd())
	return prj
}

func printProjects(items []domain.Project) error {
	rows := make([]table.Row, 0, len(items))
	for _, p := range items {
		rows = append(rows, table.Row{p.ID, p.Name, p.Description, p.CreatedAt})
	}
	return printRows(items, table.Row{"ID", "Name", "Description", "Created"}, rows)
}

func printProject(p domain.Project) error {
	return printObject(p, "ID", p.ID, "Name", p.Name, "Description", p.Description, "Created", p.CreatedAt)
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var id, desc string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create project; the name prefixes artifact ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectInput{ID: id, Name: args[0], Description: desc})
				if err != nil {
					return err
				}
				return printProject(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the selected project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				return printProject(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Rename or describe the selected project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				updated, err := e.UpdateProject(ctx, p.ID, optionalString(cmd, "name", name), optionalString(cmd, "description", description))
				if err != nil {
					return err
				}
				return printProject(updated)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the selected project; refused while it owns artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				if err := e.DeleteProject(ctx, p.ID); err != nil {
					return err
				}
				fmt.Printf("deleted project %s\n", p.ID)
				return nil
			})
		},
	}
}

func projectStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Artifact counts by type, status and area",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				st, err := e.Stats(ctx, p.ID)
				if err != nil {
					return err
				}
				rows := []table.Row{{"total", "", st.Total}}
				rows = append(rows, countRows("type", st.ByType)...)
				rows = append(rows, countRows("status", st.ByStatus)...)
				rows = append(rows, countRows("area", st.ByArea)...)
				return printRows(st, table.Row{"Group", "Key", "Count"}, rows)
			})
		},
	}
}

func countRows(group string, counts map[string]int) []table.Row {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, table.Row{group, k, counts[k]})
	}
	return rows
}

func projectExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the selected project as a JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				data, err := e.ExportProject(ctx, p.ID)
				if err != nil {
					return err
				}
				w := io.Writer(os.Stdout)
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func projectImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import an exported project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(os.Stdin)
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			var data engine.ExportData
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("invalid export document: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ImportProject(ctx, data, actorID())
				if err != nil {
					return err
				}
				return printObject(res,
					"Project", res.ProjectID,
					"Areas", res.Areas,
					"People", res.People,
					"Catalog", res.Catalog,
					"Artifacts", res.Artifacts,
					"Linkages", res.Linkages,
					"Comments", res.Comments,
					"Events", res.Events,
				)
			})
		},
	}
}

func areaCmd() *cobra.Command {
	area := &cobra.Command{Use: "area", Short: "Manage areas (the SYS in DEMO-SYS-REQ-001)"}

	area.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List areas of the selected project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.ListAreas(ctx, p.ID)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, a := range items {
					rows = append(rows, table.Row{a.Code, a.Name, a.Description})
				}
				return printRows(items, table.Row{"Code", "Name", "Description"}, rows)
			})
		},
	})

	var name, desc string
	create := &cobra.Command{
		Use:   "create <code>",
		Short: "Create area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				a, err := e.CreateArea(ctx, domain.Area{Code: args[0], Name: firstNonEmpty(name, args[0]), Description: desc, ProjectID: p.ID})
				if err != nil {
					return err
				}
				return printObject(a, "Code", a.Code, "Name", a.Name, "Project", a.ProjectID)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().StringVar(&desc, "description", "", "description")
	area.AddCommand(create)

	area.AddCommand(&cobra.Command{
		Use:   "delete <code>",
		Short: "Delete area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteArea(ctx, args[0])
			})
		},
	})
	return area
}
