package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/repo"
)

func printCatalog(items []domain.CatalogItem) error {
	rows := make([]table.Row, 0, len(items))
	for _, c := range items {
		rows = append(rows, table.Row{c.ID, c.Name, c.Type, c.Description})
	}
	return printRows(items, table.Row{"ID", "Name", "Type", "Description"}, rows)
}

func printComponentLinks(items []domain.ComponentLink) error {
	rows := make([]table.Row, 0, len(items))
	for _, l := range items {
		rows = append(rows, table.Row{l.ParentID, l.ChildID, l.ChildName, l.Type, l.Cardinality, l.Protocol, l.DataItems})
	}
	return printRows(items, table.Row{"Parent", "Child", "Name", "Type", "Cardinality", "Protocol", "Data"}, rows)
}

func printLayout(layout domain.DiagramLayout) error {
	rows := make([]table.Row, 0, len(layout.Components)+len(layout.Edges))
	for _, c := range layout.Components {
		rows = append(rows, table.Row{"component", c.ComponentID, fmt.Sprintf("%d,%d", c.X, c.Y)})
	}
	for _, e := range layout.Edges {
		rows = append(rows, table.Row{"edge", e.SourceID + " -> " + e.TargetID, e.SourceHandle + " / " + e.TargetHandle})
	}
	return printRows(layout, table.Row{"Kind", "Item", "Position / handles"}, rows)
}

// catalogKindCmd builds the create, list and update commands shared by
// components and diagrams.
func catalogKindCmd(kind, short string) *cobra.Command {
	parent := &cobra.Command{Use: kind, Short: short}

	var item domain.CatalogItem
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				item.Kind, item.ProjectID, item.Name = kind, p.ID, args[0]
				created, err := e.CreateCatalogItem(ctx, item)
				if err != nil {
					return err
				}
				return printCatalog([]domain.CatalogItem{created})
			})
		},
	}
	create.Flags().StringVar(&item.Description, "description", "", "description")
	create.Flags().StringVar(&item.Type, "type", "", "one of the types of the kind")
	if kind == domain.CatalogDiagram {
		create.Flags().StringVar(&item.Content, "content", "", "Mermaid source for sequence diagrams")
	}
	parent.AddCommand(create)

	parent.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List " + kind + "s of the selected project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.ListCatalogItems(ctx, kind, p.ID)
				if err != nil {
					return err
				}
				return printCatalog(items)
			})
		},
	})

	var name, desc, typ, content string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				updated, err := e.UpdateCatalogItem(ctx, kind, args[0], repo.CatalogPatch{
					Name:        optionalString(cmd, "name", name),
					Description: optionalString(cmd, "description", desc),
					Type:        optionalString(cmd, "type", typ),
					Content:     optionalString(cmd, "content", content),
				})
				if err != nil {
					return err
				}
				return printCatalog([]domain.CatalogItem{updated})
			})
		},
	}
	update.Flags().StringVar(&name, "name", "", "new name")
	update.Flags().StringVar(&desc, "description", "", "description")
	update.Flags().StringVar(&typ, "type", "", "type")
	if kind == domain.CatalogDiagram {
		update.Flags().StringVar(&content, "content", "", "Mermaid source")
	}
	parent.AddCommand(update)
	return parent
}

func componentCmd() *cobra.Command {
	comp := catalogKindCmd(domain.CatalogComponent, "Manage hardware and software components")

	var l domain.ComponentLink
	link := &cobra.Command{
		Use:     "link <parent-id> <child-id>",
		Short:   "Place a component under another, or update the link",
		Example: `  tl component link <rover-id> <nav-id> --cardinality 1 --protocol CAN`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l.ParentID, l.ChildID = args[0], args[1]
				got, err := e.LinkComponents(ctx, l)
				if err != nil {
					return err
				}
				return printComponentLinks([]domain.ComponentLink{got})
			})
		},
	}
	link.Flags().StringVar(&l.Type, "type", domain.LinkComposition, "composition or communication")
	link.Flags().StringVar(&l.Cardinality, "cardinality", "", "e.g. 1, 0..1, 1..*")
	link.Flags().StringVar(&l.Protocol, "protocol", "", "communication protocol")
	link.Flags().StringVar(&l.DataItems, "data", "", "exchanged data items")
	comp.AddCommand(link)

	comp.AddCommand(&cobra.Command{
		Use:   "unlink <parent-id> <child-id>",
		Short: "Remove a component link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.UnlinkComponents(ctx, args[0], args[1])
			})
		},
	})

	var parents bool
	children := &cobra.Command{
		Use:   "children <id>",
		Short: "List child components, or parents with --parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list := e.ComponentChildren
				if parents {
					list = e.ComponentParents
				}
				links, err := list(ctx, args[0])
				if err != nil {
					return err
				}
				return printComponentLinks(links)
			})
		},
	}
	children.Flags().BoolVar(&parents, "parents", false, "list the links above the component instead")
	comp.AddCommand(children)
	return comp
}

func diagramCmd() *cobra.Command {
	diag := catalogKindCmd(domain.CatalogDiagram, "Manage component and sequence diagrams")

	diag.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show the placed components and edges of a diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				layout, err := e.DiagramLayout(ctx, args[0])
				if err != nil {
					return err
				}
				return printLayout(layout)
			})
		},
	})

	var x, y int
	place := &cobra.Command{
		Use:   "place <diagram-id> <component-id>",
		Short: "Add a component to the diagram or move it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				layout, err := e.PlaceComponent(ctx, domain.DiagramComponent{DiagramID: args[0], ComponentID: args[1], X: x, Y: y})
				if err != nil {
					return err
				}
				return printLayout(layout)
			})
		},
	}
	place.Flags().IntVar(&x, "x", 0, "x position")
	place.Flags().IntVar(&y, "y", 0, "y position")
	diag.AddCommand(place)

	diag.AddCommand(&cobra.Command{
		Use:   "unplace <diagram-id> <component-id>",
		Short: "Remove a component and its edges from the diagram",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveDiagramComponent(ctx, args[0], args[1])
			})
		},
	})

	var sourceHandle, targetHandle string
	var remove bool
	edge := &cobra.Command{
		Use:   "edge <diagram-id> <source-id> <target-id>",
		Short: "Connect two placed components, or remove the edge with --remove",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if remove {
					return e.RemoveDiagramEdge(ctx, args[0], args[1], args[2])
				}
				layout, err := e.SetDiagramEdge(ctx, domain.DiagramEdge{
					DiagramID: args[0], SourceID: args[1], TargetID: args[2],
					SourceHandle: sourceHandle, TargetHandle: targetHandle,
				})
				if err != nil {
					return err
				}
				return printLayout(layout)
			})
		},
	}
	edge.Flags().StringVar(&sourceHandle, "source-handle", "", "anchor on the source")
	edge.Flags().StringVar(&targetHandle, "target-handle", "", "anchor on the target")
	edge.Flags().BoolVar(&remove, "remove", false, "remove the edge")
	diag.AddCommand(edge)
	return diag
}
