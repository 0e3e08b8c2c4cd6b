package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/starford/nodeflow/internal"
	"github.com/starford/nodeflow/internal/session"
)

func newLoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and store the session cookie",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Usage:    "Account email",
				Required: true,
				Sources:  cli.EnvVars("NODEFLOW_EMAIL"),
			},
			&cli.StringFlag{
				Name:     "password",
				Usage:    "Account password",
				Required: true,
				Sources:  cli.EnvVars("NODEFLOW_PASSWORD"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withComponents(cmd, func(c *internal.Components) error {
				err := c.Accounts.Login(ctx, session.Credentials{
					Email:    cmd.String("email"),
					Password: cmd.String("password"),
				})
				if err != nil {
					return err
				}
				fmt.Println("logged in")
				return nil
			})
		},
	}
}

func newRegisterCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Display name", Required: true},
			&cli.StringFlag{Name: "email", Usage: "Account email", Required: true, Sources: cli.EnvVars("NODEFLOW_EMAIL")},
			&cli.StringFlag{Name: "password", Usage: "Account password", Required: true, Sources: cli.EnvVars("NODEFLOW_PASSWORD")},
			&cli.StringFlag{Name: "code", Usage: "Early access code", Sources: cli.EnvVars("NODEFLOW_EARLY_ACCESS_CODE")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withComponents(cmd, func(c *internal.Components) error {
				err := c.Accounts.Register(ctx, session.Registration{
					Name:            cmd.String("name"),
					Email:           cmd.String("email"),
					Password:        cmd.String("password"),
					EarlyAccessCode: cmd.String("code"),
				})
				if err != nil {
					return err
				}
				fmt.Println("registered; run 'nodeflow login' to sign in")
				return nil
			})
		},
	}
}

func newLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "End the backend session",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withComponents(cmd, func(c *internal.Components) error {
				if err := c.Accounts.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("logged out")
				return nil
			})
		},
	}
}

func newVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check whether the stored session is valid, refreshing it if needed",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withComponents(cmd, func(c *internal.Components) error {
				status := c.Gate.Check(ctx)
				fmt.Println(status)
				if status != session.StatusAuthenticated {
					return cli.Exit("", 2)
				}
				return nil
			})
		},
	}
}
