package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/batch"
)

func TestExtractDBColumns_Batch(t *testing.T) {
	cols := ExtractDBColumns[batch.Batch]()

	assert.Equal(t, []string{
		"id", "product_code", "received_quantity", "remaining_quantity",
		"purchase_price", "purchase_date", "expiry_date", "supplier", "created_at",
	}, cols)
}

type Stamped struct {
	CreatedAt time.Time `db:"created_at"`
}

type withEmbedded struct {
	Stamped
	Code    string `db:"code"`
	Skipped string `db:"-"`
	Plain   string
}

func TestStructToMap_EmbeddedAndIgnored(t *testing.T) {
	now := time.Now().UTC()
	m := StructToMap(&withEmbedded{Stamped: Stamped{CreatedAt: now}, Code: "X", Skipped: "no", Plain: "no"})

	assert.Equal(t, map[string]any{"created_at": now, "code": "X"}, m)
}

func TestStructToMap_Batch(t *testing.T) {
	b := batch.NewBatch("MILK", 12, types.MustMoney("0.99"), time.Now(), nil, "Dairy Co")

	m := StructToMap(b)

	assert.Equal(t, b.ID, m["id"])
	assert.Equal(t, types.Quantity(12), m["remaining_quantity"])
	assert.Equal(t, "Dairy Co", m["supplier"])
	assert.Nil(t, m["expiry_date"].(*time.Time))
	assert.IsType(t, id.ID{}, m["id"])
}
