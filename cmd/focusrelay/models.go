package main

import (
	"context"
	"fmt"
	"io"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"

	"github.com/go-go-golems/focusrelay/pkg/providers"
)

type ModelsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*ModelsCommand)(nil)

func NewModelsCommand() (*ModelsCommand, error) {
	oneapi, err := providers.NewSection()
	if err != nil {
		return nil, err
	}
	return &ModelsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"models",
			cmds.WithShort("List the chat and embedding models discovered at the configured endpoint"),
			cmds.WithSections(oneapi),
		),
	}, nil
}

func (c *ModelsCommand) RunIntoWriter(ctx context.Context, parsed *values.Values, w io.Writer) error {
	var s providers.Settings
	if err := parsed.DecodeSectionInto(providers.SectionSlug, &s); err != nil {
		return err
	}
	if !s.Configured() {
		return errors.New("oneapi-endpoint and oneapi-api-key must be configured")
	}
	catalog, err := providers.Discover(ctx, s)
	if err != nil {
		return err
	}
	for _, name := range catalog.ChatNames() {
		_, _ = fmt.Fprintf(w, "chat\t%s\n", name)
	}
	for _, name := range catalog.EmbeddingNames() {
		_, _ = fmt.Fprintf(w, "embedding\t%s\n", name)
	}
	return nil
}
