package cmds

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/reflow/pkg/events"
	"github.com/go-go-golems/reflow/pkg/replay"
	"github.com/go-go-golems/reflow/pkg/session"
)

func NewReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <conversation-id>",
		Short: "Regenerate every assistant message of a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0])
		},
	}
	addGenerationFlags(cmd)
	return cmd
}

func runReplay(cmd *cobra.Command, id string) error {
	update, err := generationUpdate(cmd)
	if err != nil {
		return err
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	return runWithPrinter(ctx, cmd.OutOrStdout(), true, func(ctx context.Context, pm *events.PublisherManager) error {
		s := newSession(store, pm, session.WithReplayOptions(replay.WithProgress(func(p replay.Progress) {
			log.Debug().
				Int("index", p.Index).
				Int("total", p.Total).
				Bool("failed", p.Result.Err != nil).
				Msg("regenerated message")
		})))
		defer s.Close()

		if err := s.LoadConversation(ctx, id); err != nil {
			return err
		}
		if !update.IsEmpty() {
			if err := s.UpdateConfig(ctx, update); err != nil {
				return err
			}
		}

		err := s.Submit(ctx)
		var replayErr *replay.ReplayError
		if errors.As(err, &replayErr) {
			for _, f := range replayErr.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "message %d: %s\n", f.Index, f.Err)
			}
		}
		return err
	})
}
