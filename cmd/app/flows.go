package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/starford/nodeflow/internal"
	"github.com/starford/nodeflow/internal/chat"
	"github.com/starford/nodeflow/internal/flow"
	"github.com/starford/nodeflow/internal/mcpserver"
)

var errNoBlocks = errors.New("ask: at least one block is required")

func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Submit a saved flow to the run backend",
		ArgsUsage: "<flow-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Print the payload instead of sending it"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "flow-id")
			if err != nil {
				return err
			}
			return withComponents(cmd, func(c *internal.Components) error {
				if cmd.Bool("dry-run") {
					payload, err := c.Flows.Payload(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(payload)
				}
				res, err := c.Flows.Run(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func newAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Build a question block by block; end with '?' to send it",
		ArgsUsage: "<block>... [?]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			blocks := cmd.Args().Slice()
			if len(blocks) == 0 {
				return errNoBlocks
			}
			return withComponents(cmd, func(c *internal.Components) error {
				composer := chat.NewComposer(c.Chat, c.Logger)
				for _, b := range blocks {
					if err := composer.Select(ctx, b); err != nil {
						return err
					}
				}
				return printJSON(struct {
					Selected    []string       `json:"selected"`
					Suggestions []string       `json:"suggestions"`
					Messages    []chat.Message `json:"messages"`
				}{composer.Selected(), composer.Suggestions(), composer.Messages()})
			})
		},
	}
}

func newNodeTypesCommand() *cli.Command {
	return &cli.Command{
		Name:  "node-types",
		Usage: "Print the node type registry",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "markdown", Usage: "Print the flow format reference instead of JSON"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Bool("markdown") {
				fmt.Print(mcpserver.FlowFormatContract())
				return nil
			}
			return printJSON(flow.Templates())
		},
	}
}
