// banmenctl はbanmenのAPIサーバーに対する運用コマンド。
// 対局の参照と、複製が失敗した対局のResyncを行う。
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "banmenctl:", err)
		os.Exit(1)
	}
}

func newCommand(out io.Writer) *cli.Command {
	client := func(cmd *cli.Command) *apiClient {
		return newAPIClient(cmd.String("server"), cmd.String("token"), cmd.String("user"))
	}
	emit := func(raw json.RawMessage, err error) error {
		if err != nil {
			return err
		}
		return printJSON(out, raw)
	}

	return &cli.Command{
		Name:  "banmenctl",
		Usage: "banmen game server operations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://localhost:8080",
				Usage:   "API server base URL",
				Sources: cli.EnvVars("BANMEN_SERVER"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "gateway bearer token",
				Sources: cli.EnvVars("GATEWAY_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "user",
				Value:   "operator",
				Usage:   "player ID sent as X-User-ID",
				Sources: cli.EnvVars("BANMEN_USER"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "types",
				Usage: "list registered game types",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return emit(client(cmd).gameTypes(ctx))
				},
			},
			{
				Name:      "show",
				Usage:     "show a game session",
				ArgsUsage: "<session-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd)
					if err != nil {
						return err
					}
					return emit(client(cmd).game(ctx, id))
				},
			},
			{
				Name:      "resync",
				Usage:     "replay replication and completion for a session",
				ArgsUsage: "<session-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd)
					if err != nil {
						return err
					}
					return emit(client(cmd).resync(ctx, id))
				},
			},
			{
				Name:  "games",
				Usage: "list the games of the --user player",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return emit(client(cmd).myGames(ctx))
				},
			},
			{
				Name:      "ratings",
				Usage:     "show the rating table of a game type",
				ArgsUsage: "<game-type>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					gameType, err := requireArg(cmd)
					if err != nil {
						return err
					}
					return emit(client(cmd).ratings(ctx, gameType))
				},
			},
			{
				Name:  "completed",
				Usage: "list completed games",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "game-type", Usage: "filter by game type"},
					&cli.StringFlag{Name: "player", Usage: "filter by player ID"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum number of entries"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return emit(client(cmd).completed(ctx, cmd.String("game-type"), cmd.String("player"), int(cmd.Int("limit"))))
				},
			},
		},
	}
}

func requireArg(cmd *cli.Command) (string, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return "", fmt.Errorf("%s: missing argument %s", cmd.Name, cmd.ArgsUsage)
	}
	return arg, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
