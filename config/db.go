package config

import (
	dbm "github.com/cometbft/cometbft-db"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// DBContext specifies config information for loading a new DB.
type DBContext struct {
	ID     string  // Database name, e.g. "headers" or "blocks".
	Config *Config // Reference to the main application configuration.
}

// DBProvider takes a DBContext and returns an instantiated DB.
type DBProvider func(*DBContext) (dbm.DB, error)

// DefaultDBProvider returns a database using the DBBackend and DBDir
// specified in the ctx.Config. goleveldb is opened with a larger block
// cache since headers are re-read in full on every chain reload.
func DefaultDBProvider(ctx *DBContext) (dbm.DB, error) {
	dbType := dbm.BackendType(ctx.Config.DBBackend)
	if dbType == dbm.GoLevelDBBackend {
		return dbm.NewGoLevelDBWithOpts(ctx.ID, ctx.Config.DBDir(), &opt.Options{
			BlockCacheCapacity: 16 * opt.MiB,
			WriteBuffer:        8 * opt.MiB,
		})
	}
	return dbm.NewDB(ctx.ID, dbType, ctx.Config.DBDir())
}
