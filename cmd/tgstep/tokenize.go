package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tgstep/internal/tokenizer"
)

func tokenizeCmd() *cli.Command {
	var (
		model string
		path  string
	)
	return &cli.Command{
		Name:      "tokenize",
		Usage:     "Print the token ids and pieces of a text",
		ArgsUsage: "<text>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Destination: &model},
			&cli.StringFlag{Name: "models-path", Destination: &path},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			text := strings.Join(cmd.Args().Slice(), " ")
			if text == "" {
				return fmt.Errorf("text is required")
			}
			dir, err := resolveModelDir(model, path, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			tok, err := tokenizer.Load(dir)
			if err != nil {
				return err
			}
			ids, err := tok.Encode(text)
			if err != nil {
				return err
			}
			for _, id := range ids {
				piece, err := tok.Decode([]int{id}, false)
				if err != nil {
					return err
				}
				mark := ""
				if tok.IsSpecial(id) {
					mark = " (special)"
				}
				fmt.Printf("%6d  %q%s\n", id, piece, mark)
			}
			fmt.Printf("%d tokens\n", len(ids))
			return nil
		},
	}
}
