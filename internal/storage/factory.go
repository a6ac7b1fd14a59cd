package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sentinel/internal/common"
	"github.com/ternarybob/sentinel/internal/storage/badger"
)

// NewStorageManager creates the Badger-backed storage manager
func NewStorageManager(logger arbor.ILogger, config *common.Config) (*badger.Manager, error) {
	return badger.NewManager(logger, &config.Storage.Badger)
}
