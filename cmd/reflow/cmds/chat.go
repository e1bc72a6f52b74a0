package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/reflow/pkg/conversation"
	"github.com/go-go-golems/reflow/pkg/events"
	"github.com/go-go-golems/reflow/pkg/helpers"
	"github.com/go-go-golems/reflow/pkg/session"
	"github.com/go-go-golems/reflow/pkg/settings"
)

type chatOptions struct {
	conversationID string
	role           string
	system         string
	name           string
	noSubmit       bool
	replayAll      bool
}

func NewChatCommand() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [flags] <text...>",
		Short: "Add a message to a conversation and stream the reply",
		Long: "Appends a message to a new or stored conversation and streams a completion for it.\n" +
			"Pass - as the text to read it from stdin.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.conversationID, "conversation", "c", "", "Continue the stored conversation with this id")
	cmd.Flags().StringVar(&opts.role, "role", string(conversation.RoleUser), "Role of the added message (user, assistant)")
	cmd.Flags().StringVar(&opts.system, "system", "", "Replace the system message")
	cmd.Flags().StringVar(&opts.name, "name", "", "Name the conversation")
	cmd.Flags().BoolVar(&opts.noSubmit, "no-submit", false, "Only store the message, do not request a completion")
	cmd.Flags().BoolVar(&opts.replayAll, "replay-all", false, "Regenerate every assistant message, not just the new one")
	addGenerationFlags(cmd)

	return cmd
}

func addGenerationFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Model to use")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature (0-2)")
	cmd.Flags().Int("max-tokens", 0, "Maximum tokens in a reply")
	cmd.Flags().Float64("top-p", 0, "Nucleus sampling mass")
	cmd.Flags().Float64("frequency-penalty", 0, "Frequency penalty")
	cmd.Flags().Float64("presence-penalty", 0, "Presence penalty")
}

// generationUpdate collects the generation flags that were set explicitly.
func generationUpdate(cmd *cobra.Command) (settings.GenerationUpdate, error) {
	u := settings.GenerationUpdate{}
	f := cmd.Flags()

	if f.Changed("model") {
		v, err := f.GetString("model")
		if err != nil {
			return u, err
		}
		u.Model = helpers.StringPointer(v)
	}
	if f.Changed("max-tokens") {
		v, err := f.GetInt("max-tokens")
		if err != nil {
			return u, err
		}
		u.MaxTokens = helpers.IntPointer(v)
	}
	for name, dst := range map[string]**float64{
		"temperature":       &u.Temperature,
		"top-p":             &u.TopP,
		"frequency-penalty": &u.FrequencyPenalty,
		"presence-penalty":  &u.PresencePenalty,
	} {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetFloat64(name)
		if err != nil {
			return u, err
		}
		*dst = helpers.Float64Pointer(v)
	}
	return u, nil
}

func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", errors.Wrap(err, "could not read stdin")
		}
		return strings.TrimRight(string(b), "\n"), nil
	}
	return strings.Join(args, " "), nil
}

func runChat(cmd *cobra.Command, opts *chatOptions, args []string) error {
	role, err := conversation.ParseRole(opts.role)
	if err != nil {
		return err
	}
	if role == conversation.RoleSystem {
		return errors.New("use --system to change the system message")
	}
	text, err := readText(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
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

	return runWithPrinter(ctx, cmd.OutOrStdout(), false, func(ctx context.Context, pm *events.PublisherManager) error {
		s := newSession(store, pm)
		defer s.Close()

		if opts.conversationID != "" {
			if err := s.LoadConversation(ctx, opts.conversationID); err != nil {
				return err
			}
		}
		if !update.IsEmpty() {
			if err := s.UpdateConfig(ctx, update); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("system") {
			if err := s.UpdateSystemMessage(ctx, opts.system); err != nil {
				return err
			}
		}

		if _, err := s.AddMessage(ctx, text, role, false); err != nil {
			return err
		}
		if opts.name != "" {
			if err := s.UpdateConversationName(ctx, s.ConversationID(), opts.name); err != nil {
				return err
			}
		}

		if !opts.noSubmit && role == conversation.RoleUser {
			if err := submitChat(ctx, s, opts.replayAll); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", s.ConversationID())
		return nil
	})
}

func submitChat(ctx context.Context, s *session.Session, replayAll bool) error {
	placeholder, err := s.AddMessage(ctx, "", conversation.RoleAssistant, false)
	if err != nil {
		return err
	}
	if replayAll {
		return s.Submit(ctx)
	}
	// the orchestrator records failures in the conversation, the printer has
	// already shown them
	_, err = s.Regenerate(ctx, placeholder.ID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
