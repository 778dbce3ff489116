package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jask/navi/internal/assistant"
	"github.com/jask/navi/internal/tools"
	"github.com/jask/navi/internal/tui"
)

func newChatCmd(c *cli) *cobra.Command {
	var (
		input string
		d     decider
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Bridge a JSON-lines assistant stream to the finance tools",
		Long: `Reads assistant events, one per line, and writes tool responses as JSON
lines to stdout. A line is an event ({"kind":"tool_call","toolCall":{...}}),
a bare tool call ({"toolName":...,"args":...,"toolCallId":...}) or plain
transcript text. Remote changes are followed while the session runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var in io.Reader = os.Stdin
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
				d.in, d.out = os.Stdin, os.Stderr
			}
			ch := assistant.NewLineChannel(in, cmd.OutOrStdout())
			defer ch.Close()

			var session *assistant.Session
			hooks := assistant.Hooks{
				OnTranscript: func(text string) {
					fmt.Fprintln(cmd.ErrOrStderr(), "user:", text)
				},
				OnPending: func(action tools.PendingToolAction) {
					decision, err := d.decide(ctx, action)
					if err != nil {
						a.logger.Warn("cancelling unconfirmed action", zap.Error(err))
					}
					if decision == tui.Confirmed {
						_, err = session.Confirm(ctx)
					} else {
						_, err = session.Cancel(ctx)
					}
					if err != nil {
						a.logger.Error("answer pending action", zap.Error(err))
					}
				},
				OnState: func(state assistant.State, err error) {
					a.logger.Debug("session", zap.String("state", string(state)), zap.Error(err))
				},
			}
			session = assistant.NewSession(ch, a.pipeline, hooks, a.logger.Named("session"))

			g, gctx := errgroup.WithContext(ctx)
			watchCtx, stopWatch := context.WithCancel(gctx)
			g.Go(func() error { return a.engine.Watch(watchCtx) })
			g.Go(func() error {
				defer stopWatch()
				return session.Run(gctx)
			})
			err = g.Wait()
			a.settle(context.WithoutCancel(ctx))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "event stream file, - for stdin")
	cmd.Flags().BoolVarP(&d.yes, "yes", "y", false, "confirm every staged action")
	cmd.Flags().BoolVar(&d.no, "no", false, "cancel every staged action")
	cmd.MarkFlagsMutuallyExclusive("yes", "no")
	return cmd
}
