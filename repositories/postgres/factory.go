package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openhumans/loggather/config"
	"github.com/openhumans/loggather/repositories"
)

// RepositoryFactory owns the connection pool shared by the member store,
// the retrieval job queue and their transactions
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the database and creates a factory over it
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return NewRepositoryFactoryFromDB(db, logger), nil
}

// NewRepositoryFactoryFromDB creates a factory over an existing connection
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger.Named("postgres")}
}

// Prepare checks the connection and creates the members and
// retrieval_jobs tables when they are missing
func (f *RepositoryFactory) Prepare(ctx context.Context) error {
	if err := f.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := f.db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// NewRepositories creates the member store and the job queue
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Members: NewMemberRepository(f.db, f.logger),
		Jobs:    NewJobQueue(f.db, f.logger),
	}
}

func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
