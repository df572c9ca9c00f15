package db

import (
	"strings"

	"github.com/teranos/sentinel/errors"
)

// ErrDatabaseClosed marks work attempted after the job database was closed,
// which happens when a late submission races shutdown.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err is ErrDatabaseClosed or the driver's
// own "database is closed" error, which arrives unwrapped.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
