package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/nodeflow/internal"
	"github.com/starford/nodeflow/internal/projects"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("missing argument <%s>", name)
	}
	return v, nil
}

// parseAssignments turns key=value pairs into an update body. Values that
// parse as JSON (numbers, booleans, arrays) keep their type.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, want key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func newProjectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "Browse and edit the project database",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List projects",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "Rows to fetch"},
					&cli.IntFlag{Name: "offset", Value: 0, Usage: "Rows to skip"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withComponents(cmd, func(c *internal.Components) error {
						rows, err := c.Projects.List(ctx, int(cmd.Int("limit")), int(cmd.Int("offset")))
						if err != nil {
							return err
						}
						return printJSON(rows)
					})
				},
			},
			{
				Name:  "count",
				Usage: "Print the number of projects",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withComponents(cmd, func(c *internal.Components) error {
						n, err := c.Projects.Count(ctx)
						if err != nil {
							return err
						}
						fmt.Println(n)
						return nil
					})
				},
			},
			{
				Name:  "page",
				Usage: "Fetch one page together with the page count",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 0, Usage: "Zero-based page index"},
					&cli.IntFlag{Name: "size", Value: 10, Usage: "Page size"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withComponents(cmd, func(c *internal.Components) error {
						page, err := c.Projects.FetchPage(ctx, int(cmd.Int("page")), int(cmd.Int("size")))
						if err != nil {
							return err
						}
						return printJSON(page)
					})
				},
			},
			{
				Name:      "update",
				Usage:     "Update fields of one project",
				ArgsUsage: "<project-id>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "set", Usage: "field=value, repeatable", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "project-id")
					if err != nil {
						return err
					}
					fields, err := parseAssignments(cmd.StringSlice("set"))
					if err != nil {
						return err
					}
					return withComponents(cmd, func(c *internal.Components) error {
						p, err := c.Projects.Update(ctx, id, fields)
						if err != nil {
							return err
						}
						return printJSON(p)
					})
				},
			},
		},
	}
}

func promptFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Usage: "Prompt title", Required: true},
		&cli.StringFlag{Name: "type", Usage: "Prompt type"},
		&cli.StringFlag{Name: "system", Usage: "System prompt"},
		&cli.StringFlag{Name: "main", Usage: "Main prompt"},
	}
}

func promptFromFlags(cmd *cli.Command) projects.Prompt {
	return projects.Prompt{
		Title:        cmd.String("title"),
		Type:         cmd.String("type"),
		SystemPrompt: cmd.String("system"),
		MainPrompt:   cmd.String("main"),
	}
}

func newPromptsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prompts",
		Usage: "Manage saved prompts",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List saved prompts",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withComponents(cmd, func(c *internal.Components) error {
						list, err := c.Projects.ListPrompts(ctx)
						if err != nil {
							return err
						}
						return printJSON(list)
					})
				},
			},
			{
				Name:  "create",
				Usage: "Save a new prompt",
				Flags: promptFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withComponents(cmd, func(c *internal.Components) error {
						return c.Projects.CreatePrompt(ctx, promptFromFlags(cmd))
					})
				},
			},
			{
				Name:      "update",
				Usage:     "Replace a saved prompt",
				ArgsUsage: "<prompt-id>",
				Flags:     promptFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "prompt-id")
					if err != nil {
						return err
					}
					return withComponents(cmd, func(c *internal.Components) error {
						return c.Projects.UpdatePrompt(ctx, id, promptFromFlags(cmd))
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a saved prompt",
				ArgsUsage: "<prompt-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "prompt-id")
					if err != nil {
						return err
					}
					return withComponents(cmd, func(c *internal.Components) error {
						return c.Projects.DeletePrompt(ctx, id)
					})
				},
			},
		},
	}
}
