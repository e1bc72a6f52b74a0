package cmds

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/reflow/pkg/auth"
	"github.com/go-go-golems/reflow/pkg/completion"
	"github.com/go-go-golems/reflow/pkg/events"
	"github.com/go-go-golems/reflow/pkg/history"
	"github.com/go-go-golems/reflow/pkg/session"
	"github.com/go-go-golems/reflow/pkg/tokens"
)

// AddPersistentFlags registers the flags shared by every command. They are
// bound to viper by the root command, so they can also come from the config
// file or REFLOW_* environment variables.
func AddPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("api-key", "", "API key for the completion endpoint (asked for when missing)")
	cmd.PersistentFlags().String("endpoint", completion.DefaultEndpoint, "Chat completion endpoint")
	cmd.PersistentFlags().String("history-backend", string(history.BackendSQLite), "History backend (memory, yaml, sqlite)")
	cmd.PersistentFlags().String("history-path", "", "History file (default in the user config dir)")
	cmd.PersistentFlags().Duration("commit-interval", 250*time.Millisecond, "Minimum time between history writes while streaming")
}

func historyPath(backend history.Backend) (string, error) {
	if p := viper.GetString("history-path"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "could not find user config dir, use --history-path")
	}
	name := "history.db"
	if backend == history.BackendYAML {
		name = "history.yaml"
	}
	return filepath.Join(dir, "reflow", name), nil
}

func openHistory() (history.Store, error) {
	backend := history.Backend(viper.GetString("history-backend"))
	if backend == history.BackendMemory {
		return history.NewInMemoryStore(), nil
	}

	path, err := historyPath(backend)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrapf(err, "could not create %s", filepath.Dir(path))
	}
	log.Debug().Str("backend", string(backend)).Str("path", path).Msg("opening history")
	return history.Open(backend, path)
}

func newClient() *completion.Client {
	tokenProvider := auth.Chain{
		auth.StaticToken(viper.GetString("api-key")),
		auth.NewPromptTokenProvider(os.Stdin, os.Stderr),
	}
	return completion.NewClient(tokenProvider, completion.WithEndpoint(viper.GetString("endpoint")))
}

func newSession(store history.Store, pm *events.PublisherManager, options ...session.Option) *session.Session {
	options = append([]session.Option{
		session.WithCommitInterval(viper.GetDuration("commit-interval")),
		session.WithOrchestratorOptions(
			completion.WithPublisherManager(pm),
			completion.WithTokenCounter(tokens.NewCounter()),
		),
	}, options...)
	return session.New(store, newClient(), options...)
}

// runWithPrinter runs fn while an event router streams completion events to
// w. The router outlives ctx so that an interrupt is still printed.
func runWithPrinter(ctx context.Context, w io.Writer, showIndex bool, fn func(ctx context.Context, pm *events.PublisherManager) error) error {
	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return errors.Wrap(err, "failed to create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	router.AddHandler("printer", events.TopicCompletion, events.CompletionPrinterFunc(w, showIndex))
	pm := events.NewPublisherManager()
	pm.SubscribePublisher(events.TopicCompletion, router.Publisher)

	routerCtx, cancelRouter := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRouter()

	eg := errgroup.Group{}
	eg.Go(func() error {
		return router.Run(routerCtx)
	})
	eg.Go(func() error {
		defer cancelRouter()
		<-router.Running()
		return fn(ctx, pm)
	})

	return eg.Wait()
}
