package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slipbot/internal/command"
	"slipbot/internal/domain"
	"slipbot/internal/printer"
)

func printCmd() *cobra.Command {
	var (
		images []string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "print [text...]",
		Short: "Print a to-do slip from the command line",
		Long:  "Runs the same pipeline as a chat !todo message. With --dry-run the printer calls are listed instead of sent.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			dev, profile, err := newDevice(cfg)
			if err != nil {
				return err
			}
			var transport printer.Transport = dev
			rec := &printer.Recorder{}
			if dryRun {
				transport = rec
			}

			renderer, err := newRenderer(cfg, profile)
			if err != nil {
				return err
			}
			_, todo, err := newRegistry(cfg, newSpooler(cfg, transport, logger), renderer, logger)
			if err != nil {
				return err
			}

			now := time.Now()
			msg := domain.IncomingMessage{
				Channel:   "cli",
				ChatID:    "console",
				SenderID:  "local",
				Text:      cfg.Commands.Todo + " " + strings.Join(args, " "),
				Timestamp: now.UnixMilli(),
			}
			for _, path := range images {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				msg.Attachments = append(msg.Attachments, domain.Attachment{Filename: filepath.Base(path), Data: data})
			}

			out := cmd.OutOrStdout()
			if err := todo.Handle(cmd.Context(), msg, consoleResponder{out: out}); err != nil {
				return err
			}
			if dryRun {
				for _, call := range rec.Calls() {
					fmt.Fprintln(out, call)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&images, "image", "i", nil, "image file to print below the text (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list printer operations instead of printing")
	return cmd
}

// consoleResponder writes replies and reactions to the terminal.
type consoleResponder struct {
	out io.Writer
}

var _ domain.Responder = consoleResponder{}

func (c consoleResponder) Reply(ctx context.Context, to domain.IncomingMessage, text string) error {
	_, err := fmt.Fprintln(c.out, text)
	return err
}

func (c consoleResponder) React(ctx context.Context, to domain.IncomingMessage, glyph string) error {
	_, err := fmt.Fprintf(c.out, "[%s]\n", glyph)
	return err
}

func (c consoleResponder) MarkRead(ctx context.Context, msg domain.IncomingMessage) error {
	return nil
}

var _ command.Printer = (*printer.Spooler)(nil)
