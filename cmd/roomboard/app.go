package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MarcoPoloResearchLab/roomboard/internal/config"
	"github.com/MarcoPoloResearchLab/roomboard/internal/database"
	"github.com/MarcoPoloResearchLab/roomboard/internal/docstore"
	"github.com/MarcoPoloResearchLab/roomboard/internal/logging"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// application holds the resources shared by every subcommand.
type application struct {
	config      config.AppConfig
	logger      *zap.Logger
	sqlDB       *sql.DB
	documents   *docstore.Store
	collection  *docstore.Collection
	redisClient *redis.Client
	stopForward func()
}

// openApplication loads configuration, opens the database and builds the
// document store. With a Redis address configured, local writes are published
// to other processes; forward also delivers their writes to local subscribers.
func openApplication(ctx context.Context, forward bool) (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	app := &application{config: appConfig, logger: logger}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.sqlDB, err = db.DB()
	if err != nil {
		app.Close()
		return nil, err
	}

	idProvider := docstore.NewUUIDProvider()
	origin, err := idProvider.NewID()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("generate process origin: %w", err)
	}

	dispatcher := docstore.NewDispatcher()
	storeConfig := docstore.Config{
		Database:   db,
		IDProvider: idProvider,
		Dispatcher: dispatcher,
		Origin:     origin,
		Logger:     logger,
	}

	var relay *docstore.RedisRelay
	if appConfig.RedisAddress != "" {
		app.redisClient = redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
		if err := app.redisClient.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis %s: %w", appConfig.RedisAddress, err)
		}
		relay, err = docstore.NewRedisRelay(docstore.RedisRelayConfig{
			Client:        app.redisClient,
			ChannelPrefix: appConfig.RedisChannelPrefix,
			Origin:        origin,
			Logger:        logger,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
		storeConfig.Relay = relay
	}

	app.documents, err = docstore.NewStore(storeConfig)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.collection = app.documents.Collection(appConfig.Collection)

	if relay != nil && forward {
		app.stopForward, err = relay.Forward(ctx, dispatcher)
		if err != nil {
			app.Close()
			return nil, err
		}
		logger.Info("redis change relay attached", zap.String("address", appConfig.RedisAddress))
	}

	return app, nil
}

func (app *application) Close() {
	if app.stopForward != nil {
		app.stopForward()
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if app.sqlDB != nil {
		if err := app.sqlDB.Close(); err != nil {
			app.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = app.logger.Sync()
}
