package cmds

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"

	settings2 "github.com/go-go-golems/reflow/pkg/settings"
)

// rowAdder is the part of a glazed processor the row producers need.
type rowAdder interface {
	AddRow(ctx context.Context, row types.Row) error
}

type ModelsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ModelsCommand)(nil)

func NewModelsCommand() (*ModelsCommand, error) {
	glazedLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	return &ModelsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"models",
			cmds.WithShort("List the supported models"),
			cmds.WithLayersList(glazedLayer),
		),
	}, nil
}

func (c *ModelsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	return addModelRows(ctx, gp)
}

func addModelRows(ctx context.Context, gp rowAdder) error {
	defaults := settings2.NewGenerationConfig()
	for _, m := range settings2.Models() {
		row := types.NewRow(
			types.MRP("model", m.Name),
			types.MRP("context", m.MaxLimit),
			types.MRP("default_max_tokens", m.DefaultMaxTokens()),
			types.MRP("default", m.Name == defaults.Model),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
