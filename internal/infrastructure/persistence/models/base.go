package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// encodeJSON marshals v for a JSON column. nil and unmarshalable values
// are stored as SQL NULL.
func encodeJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// decodeJSON unmarshals a JSON column into dst, leaving dst untouched when
// the column is empty or malformed.
func decodeJSON(col datatypes.JSON, dst any) {
	if len(col) == 0 {
		return
	}
	_ = json.Unmarshal(col, dst)
}

// All returns every model managed by the engine, in dependency order
func All() []any {
	return []any{
		&SyncRecordModel{},
		&EntityConfigModel{},
		&ConnectionConfigModel{},
		&ConnectorConfigModel{},
		&StagingRecordModel{},
		&PullLogModel{},
		&ExportLogModel{},
		&WebhookModel{},
		&WebhookLogModel{},
		&WebhookRetryModel{},
		&DocumentModel{},
		&DocumentLineModel{},
		&DocumentTaxModel{},
		&MasterParameterModel{},
	}
}
