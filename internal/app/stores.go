package app

import (
	"context"
	"fmt"

	"nobat/internal/appscript"
	"nobat/internal/config"
	"nobat/internal/database"
	"nobat/internal/domain"
	"nobat/internal/google"
	"nobat/internal/logging"
	"nobat/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// stateRepository returns the store for backend, building it once. State and dedupe share
// an instance when they name the same backend. With state.failover set, remote stores fall
// back to the in-memory one.
func (a *App) stateRepository(ctx context.Context, backend string) (domain.StateRepository, error) {
	if repo, ok := a.repos[backend]; ok {
		return repo, nil
	}

	cfg := a.Config
	var repo domain.StateRepository
	switch backend {
	case config.BackendMemory:
		return a.memoryRepository(backend), nil
	case config.BackendAppScript:
		repo = a.appScript()
	case config.BackendRedis:
		client := repository.NewRedisClient(cfg.Redis)
		a.closers = append(a.closers, func() error { return repository.Close(client) })
		if err := repository.Ping(ctx, client); err != nil {
			if !cfg.State.Failover {
				return nil, err
			}
			a.logger.Warn().Err(err).Msg("Redis unavailable, starting on the memory fallback")
		}
		repo = repository.NewRedisStateRepository(client, cfg.State.TTL, cfg.Dedupe.TTL)
	case config.BackendDynamoDB:
		client, err := a.dynamoClient(ctx)
		if err != nil {
			return nil, err
		}
		dynamo, err := repository.NewDynamoStateRepository(client, cfg.DynamoDB.Table, cfg.State.TTL, cfg.Dedupe.TTL)
		if err != nil {
			return nil, err
		}
		repo = dynamo
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}

	if cfg.State.Failover {
		repo = repository.NewFailoverStateRepository(repo, a.memoryRepository(config.BackendMemory), logging.Component(a.logger, "failover"))
	}
	a.repos[backend] = repo
	return repo, nil
}

func (a *App) memoryRepository(key string) *repository.MemoryStateRepository {
	if a.memory == nil {
		a.memory = repository.NewMemoryStateRepository(a.Config.State.TTL, a.Config.Dedupe.TTL)
		a.repos[key] = a.memory
	}
	return a.memory
}

func (a *App) appScript() *appscript.Client {
	if a.script == nil {
		a.script = appscript.NewClient(a.Config.AppScript.URL, a.Config.AppScript.Secret, a.Config.Bot.RemoteTimeout)
	}
	return a.script
}

func (a *App) dynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	if a.awsCfg == nil {
		cfg, err := loadAWSConfig(ctx, a.Config.DynamoDB.Region)
		if err != nil {
			return nil, err
		}
		a.awsCfg = &cfg
	}

	endpoint := a.Config.DynamoDB.Endpoint
	return dynamodb.NewFromConfig(*a.awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (a *App) database() (*database.DB, error) {
	if a.db == nil {
		db, err := database.NewDB(a.Config.Database.Path, logging.Component(a.logger, "database"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.db = db
	}
	return a.db, nil
}

// ledger builds the configured ledger, journaled to SQLite when ledger.journal is set.
func (a *App) ledger(ctx context.Context) (domain.Ledger, error) {
	cfg := a.Config

	var ledger domain.Ledger
	switch cfg.Ledger.Backend {
	case config.BackendAppScript:
		ledger = a.appScript()
	case config.BackendSheets:
		loc, err := cfg.Dialogue.Location()
		if err != nil {
			return nil, err
		}
		sheets, err := google.NewSheetsLedger(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.SheetName, loc)
		if err != nil {
			return nil, err
		}
		if err := sheets.TestConnection(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Google Sheets connection test failed")
		}
		ledger = sheets
	case config.BackendSQLite:
		db, err := a.database()
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	if !cfg.Ledger.Journal {
		return ledger, nil
	}
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	return database.NewJournaledLedger(ledger, db), nil
}
