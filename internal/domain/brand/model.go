package brand

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Brand struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Domain    string          `db:"domain" json:"domain"`
	Industry  sql.NullString  `db:"industry" json:"industry,omitempty"`
	Metadata  json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
