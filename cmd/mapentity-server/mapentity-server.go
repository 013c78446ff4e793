package main

import (
	"context"
	"net/http"
	"os"

	"github.com/bouttier/mapentity/internal/pkg/application/audit"
	"github.com/bouttier/mapentity/internal/pkg/application/entitymanager"
	"github.com/bouttier/mapentity/internal/pkg/infrastructure/renderer"
	"github.com/bouttier/mapentity/internal/pkg/infrastructure/router"
	"github.com/bouttier/mapentity/internal/pkg/infrastructure/storage/memory"
	"github.com/bouttier/mapentity/internal/pkg/infrastructure/storage/postgres"
	api "github.com/bouttier/mapentity/internal/pkg/presentation/api/mapentity"
	"github.com/bouttier/mapentity/pkg/mapentity/registry"
	"github.com/bouttier/mapentity/pkg/mapentity/serializers"
	"github.com/bouttier/mapentity/pkg/mapentity/storage"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const serviceName string = "mapentity-server"

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion, "json")
	defer cleanup()

	cfg := LoadConfiguration(ctx)

	reg := registry.New()

	kindsfile, err := os.Open(cfg.kindsPath)
	exitIf(ctx, err, "unable to open kinds configuration", cfg.kindsPath)

	kinds, err := registry.LoadConfiguration(kindsfile)
	kindsfile.Close()
	exitIf(ctx, err, "unable to parse kinds configuration", cfg.kindsPath)

	err = kinds.Apply(reg)
	exitIf(ctx, err, "unable to register kinds", cfg.kindsPath)

	store := newStore(ctx, cfg)

	pipelineOptions := []serializers.PipelineOptionFunc{}
	if cfg.rendererEndpoint != "" {
		pipelineOptions = append(pipelineOptions,
			serializers.WithDocumentRenderer(renderer.New(cfg.rendererEndpoint)),
		)
	}

	var recorder audit.Recorder
	if cfg.auditEndpoint != "" {
		recorder, err = audit.NewRecorder(ctx, cfg.auditEndpoint)
		exitIf(ctx, err, "unable to create audit recorder", cfg.auditEndpoint)
	}

	app := entitymanager.New(reg, store, serializers.NewPipeline(pipelineOptions...), recorder)

	err = app.Start()
	exitIf(ctx, err, "unable to start entity manager", "")
	defer app.Stop()

	policies, err := os.Open(cfg.opaPath)
	exitIf(ctx, err, "unable to open opa policy file", cfg.opaPath)
	defer policies.Close()

	r := router.New(serviceName)

	err = api.RegisterHandlers(ctx, r, policies, app)
	exitIf(ctx, err, "unable to register handlers", "")

	logger.Info("starting to listen for connections", "port", cfg.servicePort)

	err = http.ListenAndServe(":"+cfg.servicePort, r)
	exitIf(ctx, err, "failed to listen for connections", "")
}

func newStore(ctx context.Context, cfg Config) storage.Store {
	if cfg.storageBackend == "postgres" {
		store, err := postgres.New(ctx, cfg.ConnStr())
		exitIf(ctx, err, "unable to connect to database", cfg.pghost)

		err = store.Initialize(ctx)
		exitIf(ctx, err, "unable to initialize database", cfg.pgdbname)

		return store
	}

	return memory.New()
}

func exitIf(ctx context.Context, err error, msg, subject string) {
	if err != nil {
		logger := logging.GetFromContext(ctx)
		if subject != "" {
			logger.Error(msg, "subject", subject, "err", err.Error())
		} else {
			logger.Error(msg, "err", err.Error())
		}

		os.Exit(1)
	}
}
