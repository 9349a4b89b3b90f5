package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veridoc/veridoc/core/certificate"
	"github.com/veridoc/veridoc/core/config"
	"github.com/veridoc/veridoc/core/dispatch"
	"github.com/veridoc/veridoc/core/logger"
	"github.com/veridoc/veridoc/core/quota"
	"github.com/veridoc/veridoc/core/verify"
	"github.com/veridoc/veridoc/integration/database/pg"
	redisint "github.com/veridoc/veridoc/integration/database/redis"
	"github.com/veridoc/veridoc/integration/renderer/chromepdf"
	s3store "github.com/veridoc/veridoc/integration/storage/s3"
)

type httpConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// generationPublisher bridges the engine's publish port to the dispatch
// queue.
type generationPublisher struct {
	pub *dispatch.Publisher
}

func (p generationPublisher) PublishGeneration(ctx context.Context, job certificate.GenerationJob) error {
	return p.pub.Publish(ctx, certificate.JobKind, job)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		logCfg      logger.Config
		pgCfg       pg.Config
		redisCfg    redisint.Config
		s3Cfg       s3store.Config
		dispatchCfg dispatch.Config
		rendererCfg chromepdf.Config
		httpCfg     httpConfig
	)
	config.MustLoad(&logCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&s3Cfg)
	config.MustLoad(&dispatchCfg)
	config.MustLoad(&rendererCfg)
	config.MustLoad(&httpCfg)

	log := logger.New(logCfg)

	if err := run(ctx, log, pgCfg, redisCfg, s3Cfg, dispatchCfg, rendererCfg, httpCfg); err != nil {
		log.Error("service terminated", logger.Error(err))
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	log *slog.Logger,
	pgCfg pg.Config,
	redisCfg redisint.Config,
	s3Cfg s3store.Config,
	dispatchCfg dispatch.Config,
	rendererCfg chromepdf.Config,
	httpCfg httpConfig,
) error {
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := redisint.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	store, err := s3store.New(ctx, s3Cfg)
	if err != nil {
		return err
	}

	repo, err := pg.NewRepository(pool)
	if err != nil {
		return err
	}
	templates, err := pg.NewTemplateStore(pool)
	if err != nil {
		return err
	}
	directory, err := pg.NewDirectory(pool)
	if err != nil {
		return err
	}
	registry, err := pg.NewIssuedRegistry(pool)
	if err != nil {
		return err
	}
	broker, err := pg.NewBroker(pool)
	if err != nil {
		return err
	}

	publisher, err := dispatch.NewPublisherFromConfig(dispatchCfg, broker)
	if err != nil {
		return err
	}
	counter, err := quota.NewCounter(redisClient)
	if err != nil {
		return err
	}

	engine, err := certificate.NewEngine(certificate.EngineDeps{
		Repository: repo,
		Templates:  templates,
		Directory:  directory,
		Renderer:   chromepdf.New(rendererCfg),
		Store:      store,
		Publisher:  generationPublisher{pub: publisher},
		Quota:      counter,
		Registry:   registry,
	}, certificate.WithEngineLogger(log))
	if err != nil {
		return err
	}

	worker, err := dispatch.NewWorkerFromConfig(dispatchCfg, broker, dispatch.WithWorkerLogger(log))
	if err != nil {
		return err
	}
	worker.RegisterHandler(dispatch.NewJobHandler(certificate.JobKind, engine.HandleGenerationJob))

	verifier, err := verify.NewService(repo, registry)
	if err != nil {
		return err
	}

	readiness := []func(context.Context) error{
		pg.Healthcheck(pool),
		redisint.Healthcheck(redisClient),
		worker.Healthcheck,
	}

	srv := &http.Server{
		Addr:         httpCfg.Addr,
		Handler:      newHandler(log, verifier, readiness),
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(gctx))
	g.Go(func() error {
		log.InfoContext(gctx, "http server listening", slog.String("addr", httpCfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.InfoContext(ctx, "certificate service started")
	return g.Wait()
}

func newHandler(log *slog.Logger, verifier *verify.Service, readiness []func(context.Context) error) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /verify/{hash}", func(w http.ResponseWriter, r *http.Request) {
		result, err := verifier.Lookup(r.Context(), r.PathValue("hash"))
		if err != nil {
			log.ErrorContext(r.Context(), "hash lookup failed", logger.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	// QR badges on rendered certificates link here; RENDERER_VERIFY_BASE_URL
	// must point at this route's prefix.
	mux.HandleFunc("GET /verify/certificate/{id}", func(w http.ResponseWriter, r *http.Request) {
		result, err := verifier.LookupCertificate(r.Context(), r.PathValue("id"))
		if err != nil {
			log.ErrorContext(r.Context(), "certificate lookup failed", logger.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range readiness {
			if err := check(r.Context()); err != nil {
				log.WarnContext(r.Context(), "readiness probe failed", logger.Error(err))
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
