package cmds

import (
	"context"
	"io"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"

	"github.com/go-go-golems/reflow/pkg/history"
)

func NewHistoryCommand() (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage stored conversations",
	}

	listCommand, err := NewHistoryListCommand()
	if err != nil {
		return nil, err
	}
	showCommand, err := NewHistoryShowCommand()
	if err != nil {
		return nil, err
	}
	for _, c := range []cmds.GlazeCommand{listCommand, showCommand} {
		cobraCommand, err := cli.BuildCobraCommandFromGlazeCommand(c)
		if err != nil {
			return nil, err
		}
		cmd.AddCommand(cobraCommand)
	}

	cmd.AddCommand(
		newHistoryRenameCommand(),
		newHistoryDeleteCommand(),
		newHistoryClearCommand(),
	)
	return cmd, nil
}

// withHistory opens the configured store for the duration of fn.
func withHistory(fn func(store history.Store) error) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	return fn(store)
}

type HistoryListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*HistoryListCommand)(nil)

func NewHistoryListCommand() (*HistoryListCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &HistoryListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List conversations, most recent first"),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *HistoryListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	return withHistory(func(store history.Store) error {
		h, err := store.List(ctx)
		if err != nil {
			return err
		}
		return addHistoryRows(ctx, gp, h)
	})
}

func addHistoryRows(ctx context.Context, gp rowAdder, h history.History) error {
	for _, id := range h.IDs() {
		c := h[id]
		row := types.NewRow(
			types.MRP("id", id),
			types.MRP("title", c.Title()),
			types.MRP("messages", len(c.Messages)),
			types.MRP("model", c.Config.Model),
			types.MRP("last_message", c.LastMessage),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

type HistoryShowCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*HistoryShowCommand)(nil)

type HistoryShowSettings struct {
	ID         string `glazed.parameter:"id"`
	WithSystem bool   `glazed.parameter:"with-system"`
}

func NewHistoryShowCommand() (*HistoryShowCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &HistoryShowCommand{
		CommandDescription: cmds.NewCommandDescription(
			"show",
			cmds.WithShort("Print the messages of a stored conversation"),
			cmds.WithLong("Print one row per message. The system message comes first with index -1."),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"with-system",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Include the system message"),
					parameters.WithDefault(true),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"id",
					parameters.ParameterTypeString,
					parameters.WithHelp("Conversation id"),
					parameters.WithRequired(true),
				),
			),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *HistoryShowCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &HistoryShowSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return err
	}
	return withHistory(func(store history.Store) error {
		conv, ok, err := store.Get(ctx, s.ID)
		if err != nil {
			return err
		}
		if !ok {
			return &history.NotFoundError{ID: s.ID}
		}
		return addConversationRows(ctx, gp, conv, s.WithSystem)
	})
}

func addConversationRows(ctx context.Context, gp rowAdder, c *history.Conversation, withSystem bool) error {
	if withSystem {
		row := types.NewRow(
			types.MRP("index", -1),
			types.MRP("id", int64(c.SystemMessage.ID)),
			types.MRP("role", string(c.SystemMessage.Role)),
			types.MRP("content", c.SystemMessage.Content),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	for i, m := range c.Messages {
		row := types.NewRow(
			types.MRP("index", i),
			types.MRP("id", int64(m.ID)),
			types.MRP("role", string(m.Role)),
			types.MRP("content", strings.TrimRight(m.Content, "\n")),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func newHistoryRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <conversation-id> <name>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(store history.Store) error {
				return store.Rename(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>...",
		Short: "Delete conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(store history.Store) error {
				return deleteConversations(cmd.Context(), store, args)
			})
		},
	}
}

// deleteConversations keeps going past failures and reports all of them.
func deleteConversations(ctx context.Context, store history.Store, ids []string) error {
	var err error
	for _, id := range ids {
		if delErr := store.Delete(ctx, id); delErr != nil {
			err = multierror.Append(err, errors.Wrapf(delErr, "could not delete %s", id))
		}
	}
	return err
}

func newHistoryClearCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Delete all conversations?")
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}
			return withHistory(func(store history.Store) error {
				return store.Clear(cmd.Context())
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func confirm(r io.Reader, w io.Writer, question string) (bool, error) {
	ui := &input.UI{Reader: r, Writer: w}
	answer, err := ui.Ask(question+" [y/N]", &input.Options{
		Default:     "n",
		HideDefault: true,
		Loop:        true,
		ValidateFunc: func(s string) error {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "y", "yes", "n", "no":
				return nil
			}
			return errors.New("answer y or n")
		},
	})
	if err != nil {
		return false, err
	}
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "y" || a == "yes", nil
}
