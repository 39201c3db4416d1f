package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"traceline/internal/domain"
	"traceline/internal/engine"
)

func artifactCmd() *cobra.Command {
	a := &cobra.Command{
		Use:     "artifact",
		Aliases: []string{"a"},
		Short:   "Manage visions, needs, use cases, requirements and documents",
	}
	a.AddCommand(artifactCreateCmd())
	a.AddCommand(artifactGetCmd())
	a.AddCommand(artifactListCmd())
	a.AddCommand(artifactUpdateCmd())
	a.AddCommand(artifactTransitionCmd())
	a.AddCommand(artifactHistoryCmd())
	a.AddCommand(artifactRenameCmd())
	a.AddCommand(artifactDeleteCmd())
	a.AddCommand(artifactPreviewCmd())
	return a
}

func artifactTypeArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	if _, ok := domain.LookupKind(args[0]); !ok {
		return fmt.Errorf("unknown artifact type %q (one of %s)", args[0], strings.Join(domain.ArtifactTypes(), ", "))
	}
	return nil
}

func printArtifact(a domain.Artifact) error {
	pairs := []any{"ID", a.ID, "Type", a.Type, "Project", a.ProjectID, "Area", a.Area, "Status", a.Status}
	if a.ParentID != "" {
		pairs = append(pairs, "Parent", a.ParentID)
	}
	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if a.Fields[k] != "" {
			pairs = append(pairs, k, a.Fields[k])
		}
	}
	for field, ids := range a.Relations {
		pairs = append(pairs, field, strings.Join(ids, ", "))
	}
	pairs = append(pairs, "Created", a.CreatedAt, "Updated", a.UpdatedAt)
	return printObject(a, pairs...)
}

// artifactLabel picks the human readable field of an artifact.
func artifactLabel(a domain.Artifact) string {
	for _, k := range []string{"title", "short_name", "name"} {
		if v := a.Fields[k]; v != "" {
			return v
		}
	}
	return ""
}

func artifactCreateCmd() *cobra.Command {
	var area, parent string
	var fields, relations []string
	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Create artifact with the next id of its project and area",
		Example: `  tl artifact create need --project DEMO --area SYS --field title="Operate unattended"
  tl artifact create requirement --area SYS --field short_name=boot --field text="The system shall boot" --relation needs=DEMO-SYS-NEED-001`,
		Args: artifactTypeArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parsePairs("field", fields)
			if err != nil {
				return err
			}
			rel, err := parseRelations(relations)
			if err != nil {
				return err
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				a, err := e.CreateArtifact(ctx, engine.CreateArtifactInput{
					Type:      args[0],
					ProjectID: p.ID,
					Area:      area,
					Fields:    f,
					ParentID:  parent,
					Relations: rel,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printArtifact(a)
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "area code or name")
	cmd.Flags().StringVar(&parent, "parent", "", "parent artifact id")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field value as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&relations, "relation", nil, "join field as field=id1,id2 (repeatable)")
	return cmd
}

func artifactGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.FindArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				return printArtifact(a)
			})
		},
	}
}

func artifactListCmd() *cobra.Command {
	var areas, statuses []string
	var owner, search string
	var all bool
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List artifacts of one type",
		Args:  artifactTypeArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				items, err := e.ListArtifacts(ctx, args[0], engine.ArtifactQuery{
					ProjectID: p.ID,
					Areas:     areas,
					Statuses:  statuses,
					Owner:     owner,
					Search:    search,
					SelectAll: all,
				})
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, a := range items {
					rows = append(rows, table.Row{a.ID, a.Area, a.Status, artifactLabel(a), a.UpdatedAt})
				}
				return printRows(items, table.Row{"ID", "Area", "Status", "Title", "Updated"}, rows)
			})
		},
	}
	cmd.Flags().StringSliceVar(&areas, "area", nil, "area filter")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter")
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	cmd.Flags().StringVarP(&search, "query", "q", "", "text search")
	cmd.Flags().BoolVar(&all, "all", false, "include Retired and Superseded")
	return cmd
}

func artifactUpdateCmd() *cobra.Command {
	var area, status, rationale, parent string
	var fields, clearFields, relations []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields, area, parent, joins or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parsePairs("field", fields)
			if err != nil {
				return err
			}
			rel, err := parseRelations(relations)
			if err != nil {
				return err
			}
			patch := make(map[string]*string, len(f)+len(clearFields))
			for k, v := range f {
				v := v
				patch[k] = &v
			}
			for _, k := range clearFields {
				patch[k] = nil
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.FindArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				a, err := e.UpdateArtifact(ctx, engine.UpdateArtifactInput{
					Type:      cur.Type,
					ID:        cur.ID,
					Area:      optionalString(cmd, "area", area),
					Status:    optionalString(cmd, "status", status),
					Rationale: rationale,
					Fields:    patch,
					ParentID:  optionalString(cmd, "parent", parent),
					Relations: rel,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printArtifact(a)
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "move to area")
	cmd.Flags().StringVar(&status, "status", "", "new status (checked against the lifecycle)")
	cmd.Flags().StringVar(&rationale, "rationale", "", "rationale recorded with a status change")
	cmd.Flags().StringVar(&parent, "parent", "", "parent artifact id (empty clears)")
	cmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "field value as key=value (repeatable)")
	cmd.Flags().StringSliceVar(&clearFields, "clear", nil, "fields to clear")
	cmd.Flags().StringArrayVar(&relations, "relation", nil, "replace join field as field=id1,id2 (repeatable)")
	return cmd
}

func artifactTransitionCmd() *cobra.Command {
	var from, rationale, comment string
	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move artifact through the review lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.FindArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				evt, err := e.Transition(ctx, engine.TransitionInput{
					Type:      cur.Type,
					ID:        cur.ID,
					From:      from,
					To:        args[1],
					Rationale: rationale,
					Comment:   comment,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printEvents([]domain.Event{evt})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "expected current status")
	cmd.Flags().StringVar(&rationale, "rationale", "", "why the status changes")
	cmd.Flags().StringVar(&comment, "comment", "", "event comment")
	return cmd
}

func artifactHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Events of an artifact, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				artifactType := ""
				if cur, err := e.FindArtifact(ctx, args[0]); err == nil {
					artifactType = cur.Type
				} else if kind, ok := kindFromID(args[0]); ok {
					// deleted artifacts keep their history
					artifactType = kind
				} else {
					return err
				}
				items, err := e.History(ctx, artifactType, args[0])
				if err != nil {
					return err
				}
				return printEvents(items)
			})
		},
	}
}

// kindFromID guesses the type from the code segment of a generated id.
func kindFromID(id string) (string, bool) {
	parts := strings.Split(id, "-")
	if len(parts) < 3 {
		return "", false
	}
	code := parts[len(parts)-2]
	for _, t := range domain.ArtifactTypes() {
		if k, ok := domain.LookupKind(t); ok && strings.EqualFold(k.Code, code) {
			return t, true
		}
	}
	return "", false
}

func artifactRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <new-id>",
		Short: "Change an artifact id everywhere it is referenced",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.FindArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				counts, err := e.RenameArtifact(ctx, cur.Type, cur.ID, args[1], actorID())
				if err != nil {
					return err
				}
				return printObject(counts,
					"Renamed", cur.ID+" -> "+args[1],
					"Linkages", counts.Linkages,
					"Comments", counts.Comments,
					"Events", counts.Events,
					"Joins", counts.Joins,
				)
			})
		},
	}
}

func artifactDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete artifact with its linkages and join rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cur, err := e.FindArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				if err := e.DeleteArtifact(ctx, cur.Type, cur.ID, actorID()); err != nil {
					return err
				}
				fmt.Printf("deleted %s %s\n", cur.Type, cur.ID)
				return nil
			})
		},
	}
}

func artifactPreviewCmd() *cobra.Command {
	var area string
	cmd := &cobra.Command{
		Use:   "preview-id <type>",
		Short: "Show the id the next create would get",
		Args:  artifactTypeArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				id, err := e.PreviewID(ctx, args[0], p.ID, area)
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "area code or name")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "Lifecycle statuses and their allowed transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string][]string{}
			rows := []table.Row{}
			for _, s := range domain.Statuses() {
				allowed := engine.AllowedTransitions(s)
				out[s] = allowed
				rows = append(rows, table.Row{s, strings.Join(allowed, ", ")})
			}
			return printRows(out, table.Row{"Status", "Allowed next"}, rows)
		},
	}
}

func earsCmd() *cobra.Command {
	ears := &cobra.Command{Use: "ears", Short: "EARS requirement phrasing"}
	ears.AddCommand(&cobra.Command{
		Use:   "templates",
		Short: "Show phrasing templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := engine.EARSTemplates()
			rows := make([]table.Row, 0, len(items))
			for _, t := range items {
				rows = append(rows, table.Row{t.Type, t.Template})
			}
			return printRows(items, table.Row{"Type", "Template"}, rows)
		},
	})
	var earsType string
	check := &cobra.Command{
		Use:   "check <text>",
		Short: "Check a requirement text against an ears_type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := engine.CheckEARS(args[0], earsType)
			return printObject(res,
				"Valid", res.Valid,
				"Detected", res.Detected,
				"Message", res.Message,
				"Suggestions", strings.Join(res.Suggestions, "\n"),
			)
		},
	}
	check.Flags().StringVar(&earsType, "type", "", "declared ears_type (detected when empty)")
	ears.AddCommand(check)
	return ears
}
