package main

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"imagefetch/config"
	"imagefetch/pkg/coordinator"
	"imagefetch/pkg/decoder"
	"imagefetch/pkg/filter"
	"imagefetch/pkg/handlers"
	"imagefetch/pkg/imagecache"
	"imagefetch/pkg/models"
	"imagefetch/pkg/notify"
	"imagefetch/pkg/runner"
	"imagefetch/pkg/utils"
	"imagefetch/pkg/version"
)

// setupRunner builds the scheme-dispatching RequestRunner from cfg,
// wiring in the blob backends only when their credentials are configured.
func setupRunner(cfg *config.Config, secrets *config.Secrets, log *utils.Logger) *runner.Multi {
	byScheme := map[string]runner.RequestRunner{}

	httpRunner := runner.NewHTTP(runner.HTTPOptions{
		Timeout:         time.Duration(cfg.Runner.TimeoutSeconds) * time.Second,
		RetryAttempts:   cfg.Runner.RetryAttempts,
		RetryBackoff:    time.Duration(cfg.Runner.RetryBackoffMS) * time.Millisecond,
		RetryMaxBackoff: 30 * time.Second,
		Log:             log,
	})
	byScheme["http"] = httpRunner
	byScheme["https"] = httpRunner
	byScheme["file"] = httpRunner

	if secrets.AWSAccessKeyID != "" && cfg.S3.Region != "" {
		s3Runner, err := runner.NewS3(runner.S3Options{
			Region:          cfg.S3.Region,
			AccessKeyID:     secrets.AWSAccessKeyID,
			SecretAccessKey: secrets.AWSSecretAccessKey,
			Log:             log,
		})
		if err != nil {
			log.WithFunc().WithError(err).Warn("failed to initialize S3 runner, s3:// urls will fail")
		} else {
			byScheme["s3"] = s3Runner
		}
	}

	if secrets.GCPCredentialsFile != "" || cfg.GCS.CredentialsFile != "" {
		credsFile := cfg.GCS.CredentialsFile
		if secrets.GCPCredentialsFile != "" {
			credsFile = secrets.GCPCredentialsFile
		}
		gcsRunner, err := runner.NewGCS(context.Background(), runner.GCSOptions{
			CredentialsFile: credsFile,
			Log:             log,
		})
		if err != nil {
			log.WithFunc().WithError(err).Warn("failed to initialize GCS runner, gs:// urls will fail")
		} else {
			byScheme["gs"] = gcsRunner
		}
	}

	multi := runner.NewMulti(byScheme)

	if cfg.Azure.StorageAccount != "" && secrets.AzureStorageAccountKey != "" {
		azRunner, err := runner.NewAzureBlob(runner.AzureBlobOptions{
			StorageAccount: cfg.Azure.StorageAccount,
			AccountKey:     secrets.AzureStorageAccountKey,
			Log:            log,
		})
		if err != nil {
			log.WithFunc().WithError(err).Warn("failed to initialize Azure Blob runner, azblob:// urls will fail")
		} else {
			byScheme["azblob"] = azRunner
			multi.RegisterHostRunner(runner.IsAzureBlobHost, azRunner)
		}
	}

	return multi
}

// setupFilterRegistry registers the built-in filters, gated by the running
// engine version.
func setupFilterRegistry(log *utils.Logger) *filter.Registry {
	registry := filter.NewRegistry(version.String(), log)

	registrations := []filter.Registration{
		{Name: "grayscale", Filter: filter.Grayscale()},
		{Name: "thumbnail", Filter: filter.Resize(128, 128)},
	}
	for _, reg := range registrations {
		if err := registry.Register(reg); err != nil {
			log.WithFunc().WithError(err).WithField("filter", reg.Name).Warn("skipping filter registration")
		}
	}
	return registry
}

// setupNotifyBus builds the lifecycle event bus: Redis pub/sub if
// configured, otherwise an in-process fan-out.
func setupNotifyBus(cfg *config.Config, secrets *config.Secrets, log *utils.Logger) notify.Bus {
	if cfg.Notify.RedisEnabled {
		log.WithFunc().WithField("addr", cfg.Notify.RedisAddr).Info("publishing lifecycle events to redis")
		return notify.NewRedis(notify.RedisOptions{
			Addr:     cfg.Notify.RedisAddr,
			Password: secrets.RedisPassword,
			DB:       cfg.Notify.RedisDB,
			Channel:  cfg.Notify.Channel,
			Log:      log,
		})
	}
	return notify.NewLocal()
}

// acceptableContentTypeSet builds a decoder.AcceptableContentTypes-shaped
// set from the configured list, or nil to keep the decoder's own default.
func acceptableContentTypeSet(types []string) map[string]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func setupHTTPServer(app *fiber.App, cfg *config.Config, log *utils.Logger) {
	log.WithFunc().Info("application starting")

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	if err := app.Listen(addr); err != nil {
		log.WithFunc().WithError(err).Fatal("http server failed")
	}
}

func main() {
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	cfg.EngineVersion = version.String()
	secrets := config.LoadSecrets()

	logConfig := utils.Config{
		LogLevel:  cfg.Logging.Level,
		LogFormat: cfg.Logging.Format,
		Pretty:    true,
	}
	log := utils.NewLogger(logConfig)

	log.WithFields(logrus.Fields{
		"version": version.Version,
		"commit":  version.Commit,
	}).Info("imagefetch engine starting")

	cache := imagecache.New(imagecache.Options{
		MemoryCapacity:                 cfg.Cache.MemoryCapacityBytes,
		PreferredMemoryUsageAfterPurge: cfg.Cache.PreferredUsageAfterPurge,
		Log:                            log,
	})

	registry := setupFilterRegistry(log)
	dec := decoder.New(decoder.Options{
		AcceptableContentTypes:      acceptableContentTypeSet(cfg.AcceptableContentTypes),
		SkipValidationForLocalFiles: true,
	})
	requestRunner := setupRunner(cfg, secrets, log)
	bus := setupNotifyBus(cfg, secrets, log)

	prioritization := coordinator.FIFO
	if strings.EqualFold(cfg.Coordinator.Prioritization, "lifo") {
		prioritization = coordinator.LIFO
	}

	var credential *models.Credential
	if secrets.RequestCredentialValue != "" {
		credential = &models.Credential{Header: "Authorization", Value: secrets.RequestCredentialValue}
	}

	coord := coordinator.New(coordinator.Config{
		MaxConcurrent:  cfg.Coordinator.MaxConcurrent,
		Prioritization: prioritization,
		Cache:          cache,
		Runner:         requestRunner,
		Decoder:        dec,
		Credential:     credential,
		Executor:       coordinator.AsyncExecutor{},
		Bus:            bus,
		Log:            log,
	})

	coordinatorHandler := handlers.NewCoordinatorHandler(coord, registry, log)
	cacheHandler := handlers.NewCacheHandler(cache, log)

	app := fiber.New(fiber.Config{
		AppName:       "imagefetch",
		CaseSensitive: true,
		StrictRouting: true,
		ServerHeader:  "imagefetch",
		BodyLimit:     32 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.WithFields(logrus.Fields{
				"path":   c.Path(),
				"method": c.Method(),
				"error":  err.Error(),
			}).Error("error handling request")
			return c.Status(fiber.StatusInternalServerError).SendString("internal server error")
		},
	})

	app.Use(func(c *fiber.Ctx) error {
		if c.Path() == "/health" {
			return c.Next()
		}
		log.WithFields(logrus.Fields{
			"path":   c.Path(),
			"method": c.Method(),
		}).Info("incoming request")
		return c.Next()
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Post("/download", coordinatorHandler.Download)
	app.Get("/result/:receiptId", coordinatorHandler.Result)
	app.Post("/cancel/:receiptId", coordinatorHandler.Cancel)
	app.Get("/status", coordinatorHandler.Status)

	app.Get("/cache/status", cacheHandler.GetCacheStatus)
	app.Get("/cache/images", cacheHandler.ListCachedImages)
	app.Delete("/cache/image", cacheHandler.DeleteCachedImage)
	app.Post("/cache/purge", cacheHandler.PurgeCache)

	setupHTTPServer(app, cfg, log)
}
