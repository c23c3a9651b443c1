package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/focusrelay/pkg/config"
	"github.com/go-go-golems/focusrelay/pkg/events"
	"github.com/go-go-golems/focusrelay/pkg/persistence/chatstore"
	"github.com/go-go-golems/focusrelay/pkg/providers"
	"github.com/go-go-golems/focusrelay/pkg/redisstream"
	"github.com/go-go-golems/focusrelay/pkg/relay"
	"github.com/go-go-golems/focusrelay/pkg/search"
	"github.com/go-go-golems/focusrelay/pkg/server"
	"github.com/go-go-golems/focusrelay/pkg/strategy"
)

type ServeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.BareCommand = (*ServeCommand)(nil)

func NewServeCommand() (*ServeCommand, error) {
	sections, err := config.Sections()
	if err != nil {
		return nil, err
	}
	return &ServeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"serve",
			cmds.WithShort("Run the websocket relay and HTTP API"),
			cmds.WithLong("Serve the chat relay on / and the read API under /api. "+
				"Every setting is also read from FOCUSRELAY_* variables and the --config file."),
			cmds.WithSections(sections...),
		),
	}, nil
}

func (c *ServeCommand) Run(ctx context.Context, parsed *values.Values) error {
	s, err := config.Decode(parsed)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return errors.Wrap(err, "invalid settings")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, s)
}

// app holds everything serve builds, so it can be torn down in one place.
type app struct {
	store   chatstore.Store
	pubsub  *redisstream.PubSub
	server  *server.Server
	catalog *providers.Catalog
}

func (a *app) Close() {
	if err := a.pubsub.Close(); err != nil {
		log.Warn().Err(err).Msg("pubsub close error")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("chat store close error")
		}
	}
}

func buildApp(ctx context.Context, s config.Settings, reg *prometheus.Registry) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := openStore(s.Store)
	if err != nil {
		return nil, err
	}
	a.store = store

	ps, err := redisstream.BuildPubSub(s.Redis)
	if err != nil {
		return nil, errors.Wrap(err, "build pubsub")
	}
	a.pubsub = ps

	searcher, err := search.NewSearxNG(s.Search.SearxNGURL, &http.Client{Timeout: s.Search.Timeout()})
	if err != nil {
		return nil, err
	}
	registry, err := strategy.DefaultRegistry(searcher, strategy.SearchConfig{
		MaxResults: s.Search.MaxResults,
		Language:   s.Search.Language,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build strategy registry")
	}

	catalog, err := providers.Discover(ctx, s.OneAPI)
	if err != nil {
		log.Error().Err(err).Str("endpoint", s.OneAPI.Endpoint).Msg("model discovery failed, continuing without models")
	}
	a.catalog = catalog
	models := catalog.Select(s.OneAPI.ChatModel, s.OneAPI.EmbeddingModel)
	if models.LLM == nil {
		log.Warn().Msg("no chat model available, search strategies will report errors")
	} else {
		log.Info().Str("chat_model", models.LLM.Name()).Msg("selected chat model")
	}

	srv, err := server.New(ctx, server.Options{
		Settings: s.Server,
		Relay: relay.Deps{
			Registry: registry,
			Store:    store,
			Opener:   events.NewHub(ps),
			Models:   models,
			Metrics:  relay.NewMetrics(reg),
		},
		Catalog:  catalog,
		Gatherer: reg,
	})
	if err != nil {
		return nil, err
	}
	a.server = srv
	ok = true
	return a, nil
}

func serve(ctx context.Context, s config.Settings) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a, err := buildApp(ctx, s, reg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.server.Run(ctx)
}

func openStore(s config.StoreSettings) (chatstore.Store, error) {
	switch s.Driver {
	case config.StoreMemory:
		log.Info().Msg("using in-memory chat store")
		return chatstore.NewInMemoryStore(), nil
	case config.StoreSQLite:
		dsn, err := chatstore.SQLiteDSNForFile(s.Path)
		if err != nil {
			return nil, err
		}
		store, err := chatstore.NewSQLiteStore(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite chat store")
		}
		log.Info().Str("path", s.Path).Msg("using sqlite chat store")
		return store, nil
	}
	return nil, errors.Errorf("unknown store driver %q", s.Driver)
}
