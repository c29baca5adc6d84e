package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/donseba/go-htmx"
	"github.com/joho/godotenv"
	"github.com/potholemap/potholemap/internal/ai"
	"github.com/potholemap/potholemap/internal/board"
	"github.com/potholemap/potholemap/internal/e2etest"
	"github.com/potholemap/potholemap/internal/envstruct"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/logging"
	"github.com/potholemap/potholemap/internal/pagesession"
	"github.com/potholemap/potholemap/internal/potholeapi"
	"github.com/potholemap/potholemap/internal/pprofserver"
	"github.com/potholemap/potholemap/internal/repositories"
	"github.com/potholemap/potholemap/internal/sqlite"
	"github.com/potholemap/potholemap/internal/workflow"
	"golang.org/x/sync/errgroup"
)

type application struct {
	logger          *slog.Logger
	sessionManager  *scs.SessionManager
	htmx            *htmx.HTMX
	pages           *pagesession.Registry
	reports         *potholeapi.Client
	serviceRequests *repositories.ServiceRequestRepository
	sim311Delay     time.Duration
}

type config struct {
	// Addr is the address the application listens on.
	Addr string `env:"POTHOLEMAP_ADDR" envDefault:"localhost:4000"`
	// APIURL is the base URL of the backend serving the pothole listing and the analyzer.
	APIURL string `env:"POTHOLEMAP_API_URL" envDefault:"http://localhost:8000"`
	// SubmitURL is the base URL of the 311 service. Empty means the simulated service of this application.
	SubmitURL string `env:"POTHOLEMAP_SUBMIT_URL" envDefault:""`
	// SqliteURL is the path to the SQLite database. ":memory:" keeps everything in memory.
	SqliteURL string `env:"POTHOLEMAP_SQLITE_URL" envDefault:"./potholemap.sqlite"`
	// PprofAddr enables the pprof server when set.
	PprofAddr string `env:"POTHOLEMAP_PPROF_ADDR" envDefault:""`
	// Sim311Delay is the processing time of the simulated 311 service.
	Sim311Delay time.Duration `env:"POTHOLEMAP_SIM311_DELAY" envDefault:"2s"`
	// CloseDelay is how long a successful submission stays on screen. Negative keeps it open.
	CloseDelay time.Duration `env:"POTHOLEMAP_CLOSE_DELAY" envDefault:"2s"`
	// AnalyzeRate limits analyzer calls per second across all sessions.
	AnalyzeRate float64 `env:"POTHOLEMAP_ANALYZE_RATE" envDefault:"2"`
	// HTTPTimeout bounds each outbound request.
	HTTPTimeout time.Duration `env:"POTHOLEMAP_HTTP_TIMEOUT" envDefault:"30s"`
	// OpenAIAPIKey enables drafting report descriptions from street view imagery.
	OpenAIAPIKey string `env:"OPENAI_API_KEY" envDefault:""`
	// OpenAIBaseURL overrides the OpenAI endpoint.
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:""`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		cfg config
		err error
	)
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listener net.Listener
	if listener, err = net.Listen("tcp", cfg.Addr); err != nil {
		return errors.Wrap(err, "TCP listen", slog.String("addr", cfg.Addr))
	}
	addr := listener.Addr().String()
	submitURL := cfg.SubmitURL
	if submitURL == "" {
		submitURL = "http://" + addr
	}

	var dbs *sqlite.Database
	if dbs, err = sqlite.NewDatabase(ctx, cfg.SqliteURL, logger); err != nil {
		_ = listener.Close()
		return errors.Wrap(err, "new database", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := dbs.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close database", errors.SlogError(closeErr))
		}
	}()

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.NewWithCleanupInterval(dbs.ReadWrite.DB, 24*time.Hour) //nolint:mnd // daily.
	sessionManager.Lifetime = 12 * time.Hour                                                    //nolint:mnd // half a day.
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode

	var reports *potholeapi.Client
	if reports, err = potholeapi.NewClient(potholeapi.Config{
		APIURL:      cfg.APIURL,
		SubmitURL:   submitURL,
		HTTPClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		AnalyzeRate: cfg.AnalyzeRate,
		Logger:      logger,
	}); err != nil {
		_ = listener.Close()
		return errors.Wrap(err, "new pothole API client")
	}

	var describer workflow.Describer
	if cfg.OpenAIAPIKey != "" {
		describer = ai.NewClient(cfg.OpenAIAPIKey, ai.Options{BaseURL: cfg.OpenAIBaseURL, Model: ""})
		logger.LogAttrs(ctx, slog.LevelInfo, "drafting report descriptions with OpenAI")
	}

	pages := pagesession.NewRegistry(ctx, pagesession.Config{
		NewBoard: func(ctx context.Context) (*board.Board, error) {
			records, listErr := reports.ListReports(ctx)
			if listErr != nil {
				return nil, errors.Wrap(listErr, "list reports")
			}
			return board.New(records), nil
		},
		NewWorkflow: func(ctx context.Context, b *board.Board) *workflow.Controller {
			return workflow.New(ctx, workflow.Config{
				Analyzer:     reports,
				Submitter:    reports,
				Describer:    describer,
				OnSubmitted:  b.MarkSubmitted,
				CloseDelay:   cfg.CloseDelay,
				DraftTimeout: cfg.HTTPTimeout,
				Logger:       logger,
			})
		},
		IdleTimeout: sessionManager.Lifetime,
		Logger:      logger,
	})
	defer pages.Shutdown()

	app := application{
		logger:          logger,
		sessionManager:  sessionManager,
		htmx:            htmx.New(),
		pages:           pages,
		reports:         reports,
		serviceRequests: repositories.NewServiceRequestRepository(dbs, logger),
		sim311Delay:     cfg.Sim311Delay,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return app.configureAndStartServer(gctx, listener)
	})
	g.Go(func() error {
		dbs.StartDatabaseOptimizer(gctx, time.Hour)
		return nil
	})
	g.Go(func() error {
		pages.StartJanitor(gctx, 5*time.Minute) //nolint:mnd // 5 minutes
		return nil
	})
	if cfg.PprofAddr != "" {
		g.Go(func() error {
			return pprofserver.Launch(gctx, cfg.PprofAddr, logger)
		})
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "starting server", slog.String(e2etest.LogAddrKey, addr),
		slog.String("api_url", cfg.APIURL), slog.String("submit_url", submitURL))

	if err = g.Wait(); err != nil {
		return errors.Wrap(err, "run")
	}
	return nil
}

func main() {
	ctx := context.Background()
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failure loading .env file", errors.SlogError(err))
		os.Exit(1)
	}

	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
