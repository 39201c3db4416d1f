package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"traceline/internal/app"
	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/repo"
)

func printEvents(items []domain.Event) error {
	rows := make([]table.Row, 0, len(items))
	for _, evt := range items {
		rows = append(rows, table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID, evt.Payload})
	}
	return printRows(items, table.Row{"ID", "Time", "Type", "Kind", "Entity", "Actor", "Payload"}, rows)
}

func printLinkages(items []domain.Linkage) error {
	rows := make([]table.Row, 0, len(items))
	for _, l := range items {
		rows = append(rows, table.Row{l.ID, l.SourceType + " " + l.SourceID, l.RelationshipType, l.TargetType + " " + l.TargetID})
	}
	return printRows(items, table.Row{"ID", "Source", "Relationship", "Target"}, rows)
}

func linkCmd() *cobra.Command {
	link := &cobra.Command{Use: "link", Short: "Manage linkages between artifacts and references"}

	var in engine.LinkageInput
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create linkage",
		Example: `  tl link create --source-type requirement --source DEMO-SYS-REQ-001 --rel documented_in --target-type url --target https://example.com/icd`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				in.ProjectID = p.ID
				in.ActorID = actorID()
				l, err := e.CreateLinkage(ctx, in)
				if err != nil {
					return err
				}
				return printLinkages([]domain.Linkage{l})
			})
		},
	}
	create.Flags().StringVar(&in.SourceType, "source-type", "", "source type")
	create.Flags().StringVar(&in.SourceID, "source", "", "source id")
	create.Flags().StringVar(&in.TargetType, "target-type", "", "target type")
	create.Flags().StringVar(&in.TargetID, "target", "", "target id or reference")
	create.Flags().StringVar(&in.RelationshipType, "rel", "", "relationship: "+strings.Join(domain.Relationships(), ", "))
	_ = create.MarkFlagRequired("source-type")
	_ = create.MarkFlagRequired("source")
	_ = create.MarkFlagRequired("target-type")
	_ = create.MarkFlagRequired("target")
	_ = create.MarkFlagRequired("rel")
	link.AddCommand(create)

	var q engine.LinkageQuery
	list := &cobra.Command{
		Use:   "list",
		Short: "List linkages of the selected project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Project) error {
				q.ProjectID = p.ID
				items, err := e.ListLinkages(ctx, q)
				if err != nil {
					return err
				}
				return printLinkages(items)
			})
		},
	}
	list.Flags().StringVar(&q.SourceType, "source-type", "", "source type")
	list.Flags().StringVar(&q.SourceID, "source", "", "source id")
	list.Flags().StringVar(&q.TargetType, "target-type", "", "target type")
	list.Flags().StringVar(&q.TargetID, "target", "", "target id")
	list.Flags().StringVar(&q.Relationship, "rel", "", "relationship")
	link.AddCommand(list)

	link.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete linkage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteLinkage(ctx, args[0])
			})
		},
	})
	return link
}

func printComments(items []domain.Comment) error {
	rows := make([]table.Row, 0, len(items))
	for _, c := range items {
		state := "open"
		if c.Resolved {
			state = firstNonEmpty(c.ResolutionAction, "resolved")
		}
		rows = append(rows, table.Row{c.ID, c.FieldName, c.Author, state, c.Text})
	}
	return printRows(items, table.Row{"ID", "Field", "Author", "State", "Text"}, rows)
}

func commentCmd() *cobra.Command {
	comment := &cobra.Command{Use: "comment", Short: "Review comments on artifacts"}

	var field, selected string
	add := &cobra.Command{
		Use:   "add <artifact-id> <text>",
		Short: "Comment on an artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateComment(ctx, engine.CommentInput{
					ArtifactID:   args[0],
					FieldName:    field,
					Text:         args[1],
					Author:       actorID(),
					SelectedText: selected,
				})
				if err != nil {
					return err
				}
				return printComments([]domain.Comment{c})
			})
		},
	}
	add.Flags().StringVar(&field, "field", "", "field the comment is about")
	add.Flags().StringVar(&selected, "selected", "", "quoted text")
	comment.AddCommand(add)

	var resolved string
	list := &cobra.Command{
		Use:   "list <artifact-id>",
		Short: "List comments of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *bool
			if resolved != "" {
				v, err := strconv.ParseBool(resolved)
				if err != nil {
					return fmt.Errorf("--resolved must be true or false")
				}
				filter = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListComments(ctx, args[0], filter)
				if err != nil {
					return err
				}
				return printComments(items)
			})
		},
	}
	list.Flags().StringVar(&resolved, "resolved", "", "true or false")
	comment.AddCommand(list)

	var action string
	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ResolveComment(ctx, args[0], actorID(), action)
				if err != nil {
					return err
				}
				return printComments([]domain.Comment{c})
			})
		},
	}
	resolve.Flags().StringVar(&action, "action", "", "what was done, e.g. accepted or rejected")
	comment.AddCommand(resolve)

	comment.AddCommand(&cobra.Command{
		Use:   "reopen <id>",
		Short: "Mark comment unresolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UnresolveComment(ctx, args[0])
				if err != nil {
					return err
				}
				return printComments([]domain.Comment{c})
			})
		},
	})
	return comment
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage API users and keys"}

	var password string
	var roles []string
	create := &cobra.Command{
		Use:   "create <username>",
		Short: "Create user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Auth.CreateUser(ctx, args[0], password, roles)
				if err != nil {
					return err
				}
				return printObject(u, "ID", u.ID, "Username", u.Username, "Roles", strings.Join(u.Roles, ", "))
			})
		},
	}
	create.Flags().StringVar(&password, "password", "", "password")
	create.Flags().StringSliceVar(&roles, "role", []string{"viewer"}, "roles: admin, editor, reviewer, viewer")
	_ = create.MarkFlagRequired("password")
	user.AddCommand(create)

	user.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListUsers(ctx, nil)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, u := range items {
					rows = append(rows, table.Row{u.ID, u.Username, strings.Join(u.Roles, ", "), u.CreatedAt})
				}
				return printRows(items, table.Row{"ID", "Username", "Roles", "Created"}, rows)
			})
		},
	})

	var keyName string
	key := &cobra.Command{
		Use:   "key <username>",
		Short: "Mint an API key; it is only printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUserByUsername(ctx, nil, args[0])
				if err != nil {
					return err
				}
				raw, k, err := e.Auth.CreateAPIKey(ctx, u.ID, keyName)
				if err != nil {
					return err
				}
				return printObject(map[string]any{"key": raw, "api_key": k}, "Key", raw, "ID", k.ID, "User", u.Username)
			})
		},
	}
	key.Flags().StringVar(&keyName, "name", "", "label")
	user.AddCommand(key)
	return user
}

func backupCmd() *cobra.Command {
	backup := &cobra.Command{Use: "backup", Short: "Snapshot and restore projects"}

	backup.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Snapshot every project to the blob store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.CreateBackup(ctx)
				if err != nil {
					return err
				}
				return printObject(b, "Name", b.Name, "Size", b.Size, "Created", b.CreatedAt)
			})
		},
	})

	backup.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListBackups(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, b := range items {
					rows = append(rows, table.Row{b.Name, b.Size, b.CreatedAt})
				}
				return printRows(items, table.Row{"Name", "Size", "Created"}, rows)
			})
		},
	})

	backup.AddCommand(&cobra.Command{
		Use:   "restore <name>",
		Short: "Import every project of a backup that is not present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RestoreBackup(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printObject(res, "Restored", strings.Join(res.Restored, ", "), "Skipped", strings.Join(res.Skipped, ", "))
			})
		},
	})
	return backup
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	var filter repo.EventFilter
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Latest events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if ref := strings.TrimSpace(viper.GetString("project")); ref != "" {
					p, err := app.ResolveProject(ctx, e, ref)
					if err != nil {
						return err
					}
					filter.ProjectID = p.ID
				}
				items, err := e.Repo.LatestEvents(ctx, nil, n, filter)
				if err != nil {
					return err
				}
				return printEvents(items)
			})
		},
	}
	tail.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&filter.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&filter.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&filter.EntityID, "entity-id", "", "entity id")
	logc.AddCommand(tail)
	return logc
}
