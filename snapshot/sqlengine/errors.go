package sqlengine

import (
	"fmt"

	"github.com/AntonStoeckl/entity-snapshots-go/snapshot"
)

var (
	ErrUnknownDialect   = fmt.Errorf("%w: unknown sql dialect", snapshot.ErrConfiguration)
	ErrEmptyColumnName  = fmt.Errorf("%w: empty column name supplied", snapshot.ErrConfiguration)
	ErrNilEntityType    = fmt.Errorf("%w: nil entity type supplied", snapshot.ErrConfiguration)
	ErrAdvisoryUnlocked = fmt.Errorf("%w: advisory lock was not held at unlock", snapshot.ErrLockFailed)
)
