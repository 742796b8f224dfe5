package node

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	cfg "github.com/stratis-go/fullnode/config"
)

const (
	headersDBName = "headers"
	blocksDBName  = "blocks"
)

func initDBs(config *cfg.Config, dbProvider cfg.DBProvider) (headerDB dbm.DB, blockDB dbm.DB, err error) {
	headerDB, err = dbProvider(&cfg.DBContext{ID: headersDBName, Config: config})
	if err != nil {
		return nil, nil, fmt.Errorf("opening header db: %w", err)
	}

	blockDB, err = dbProvider(&cfg.DBContext{ID: blocksDBName, Config: config})
	if err != nil {
		headerDB.Close()
		return nil, nil, fmt.Errorf("opening block db: %w", err)
	}

	return headerDB, blockDB, nil
}
