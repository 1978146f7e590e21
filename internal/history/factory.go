package history

import (
	"fmt"

	"github.com/fraudrules/fraudrules/internal/domain"
)

// New constructs the configured Transaction-History Store backend.
func New(cfg domain.HistoryConfig) (domain.HistoryStore, error) {
	switch cfg.Backend {
	case "sql", "":
		return NewSQLStore(cfg)
	case "redis":
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported history backend %q", domain.ErrConfiguration, cfg.Backend)
	}
}
