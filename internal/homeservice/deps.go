package homeservice

import (
	"database/sql"
	"fmt"
	"net/http"

	"firebase.google.com/go/messaging"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"fixitBack/internal/events"
)

// Logger is the minimal logging interface required by the module.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Deps aggregates runtime dependencies for the home-services module.
type Deps struct {
	DB         *sql.DB
	RDB        redis.UniversalClient
	Logger     Logger
	Config     Config
	HTTPClient *http.Client
	// Messaging enables FCM push when set.
	Messaging *messaging.Client
	// Queue routes notifications through asynq when set; otherwise they are
	// delivered inline.
	Queue     *asynq.Client
	Publisher events.Publisher

	module *moduleState
}

// Validate ensures that the deps struct contains the essentials before bootstrapping services.
func (d *Deps) Validate() error {
	if d == nil {
		return fmt.Errorf("homeservice deps are nil")
	}
	if d.DB == nil {
		return fmt.Errorf("homeservice deps DB is required")
	}
	if d.RDB == nil {
		return fmt.Errorf("homeservice deps RDB is required")
	}
	if d.Logger == nil {
		return fmt.Errorf("homeservice deps Logger is required")
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{}
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	return nil
}
