package erp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/synchub/backend/internal/domain/erpsync"
	"github.com/synchub/backend/internal/infrastructure/connector"
	"go.uber.org/zap"
)

// ConfiguredHandler runs a tenant-configured statement, binding each
// mapped Hub path as a named parameter.
type ConfiguredHandler struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewConfiguredHandler creates the handler
func NewConfiguredHandler(timeout time.Duration, logger *zap.Logger) *ConfiguredHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfiguredHandler{timeout: timeout, logger: logger}
}

// Handle executes the insert statement, or the update statement when the
// record already carries an external id. The returned id comes from the
// first row's ID column.
func (h *ConfiguredHandler) Handle(ctx context.Context, db *sql.DB, record *erpsync.Record, cfg *erpsync.EntityConfig) (string, error) {
	statement := cfg.StatementFor(record)
	args := BindParameters(record.Payload, cfg.FieldMapping)
	if record.ExternalID != "" && statement == cfg.UpdateStatement {
		args = append(args, sql.Named("externalId", record.ExternalID))
	}

	qctx, cancel := withStatementTimeout(ctx, h.timeout)
	defer cancel()

	rows, err := db.QueryContext(qctx, statement, args...)
	if err != nil {
		return "", fmt.Errorf("execute %s statement for %s: %w", cfg.EntityType, record.EntityID, err)
	}
	defer rows.Close()

	id, err := readID(rows)
	if err != nil {
		return "", fmt.Errorf("read %s result for %s: %w", cfg.EntityType, record.EntityID, err)
	}
	h.logger.Debug("configured statement executed",
		zap.String("entity_type", cfg.EntityType),
		zap.String("entity_id", record.EntityID),
		zap.String("external_id", id))
	return id, nil
}

// BindParameters turns a Hub path -> parameter mapping into named
// arguments, sorted by parameter name. Nested values are sent as JSON.
func BindParameters(payload erpsync.Payload, mapping map[string]string) []any {
	type pair struct{ path, param string }
	pairs := make([]pair, 0, len(mapping))
	for path, param := range mapping {
		pairs = append(pairs, pair{path, strings.TrimPrefix(param, "@")})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].param < pairs[j].param })

	args := make([]any, 0, len(pairs))
	for _, p := range pairs {
		args = append(args, sql.Named(p.param, bindValue(connector.GetPath(map[string]any(payload), p.path))))
	}
	return args
}

func bindValue(v any) any {
	switch t := v.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(raw)
	default:
		return t
	}
}

func readID(rows *sql.Rows) (string, error) {
	cols, err := rows.Columns()
	if err != nil {
		// statements without a result set
		return "", nil
	}
	if !rows.Next() {
		return "", rows.Err()
	}
	idx := -1
	for i, c := range cols {
		if c == "ID" || c == "id" {
			idx = i
			break
		}
	}
	values := make([]any, len(cols))
	for i := range values {
		values[i] = new(any)
	}
	if err := rows.Scan(values...); err != nil {
		return "", err
	}
	if idx < 0 {
		return "", nil
	}
	switch v := (*values[idx].(*any)).(type) {
	case nil:
		return "", nil
	case []byte:
		return string(v), nil
	default:
		return stringValue(v), nil
	}
}
