package usage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"tutorgate/internal/storage"
)

// NewStore creates the appropriate Store for the given storage backend.
// The store borrows the connection; closing it never closes the database.
func NewStore(store storage.Storage, retentionDays int) (Store, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(store.SQLiteDB(), retentionDays)

	case storage.TypePostgreSQL:
		pool, err := pgPool(store)
		if err != nil {
			return nil, err
		}
		return NewPostgreSQLStore(context.Background(), pool, retentionDays)

	case storage.TypeMongoDB:
		db, err := mongoDatabase(store)
		if err != nil {
			return nil, err
		}
		return NewMongoDBStore(db, retentionDays)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

// NewReaderFor creates the appropriate Reader for the given storage backend.
func NewReaderFor(store storage.Storage) (Reader, error) {
	switch store.Type() {
	case storage.TypeSQLite:
		return NewSQLiteReader(store.SQLiteDB())

	case storage.TypePostgreSQL:
		pool, err := pgPool(store)
		if err != nil {
			return nil, err
		}
		return NewPostgreSQLReader(pool)

	case storage.TypeMongoDB:
		db, err := mongoDatabase(store)
		if err != nil {
			return nil, err
		}
		return NewMongoDBReader(db)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", store.Type())
	}
}

func pgPool(store storage.Storage) (*pgxpool.Pool, error) {
	pool := store.PostgreSQLPool()
	if pool == nil {
		return nil, fmt.Errorf("PostgreSQL pool is nil")
	}
	pgxPool, ok := pool.(*pgxpool.Pool)
	if !ok {
		return nil, fmt.Errorf("invalid PostgreSQL pool type: %T", pool)
	}
	return pgxPool, nil
}

func mongoDatabase(store storage.Storage) (*mongo.Database, error) {
	db := store.MongoDatabase()
	if db == nil {
		return nil, fmt.Errorf("MongoDB database is nil")
	}
	mongoDB, ok := db.(*mongo.Database)
	if !ok {
		return nil, fmt.Errorf("invalid MongoDB database type: %T", db)
	}
	return mongoDB, nil
}
