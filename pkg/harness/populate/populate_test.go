package populate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convergedb/sync/pkg/harness/aggregator"
	"github.com/convergedb/sync/pkg/logger"
	"github.com/convergedb/sync/pkg/schema"
	"github.com/convergedb/sync/pkg/target/memstore"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Parse([]byte(`
tables:
  - name: customers
    primary_key: id
    columns:
      - {name: id, type: int64}
      - {name: name, type: text}
  - name: orders
    primary_key: id
    columns:
      - {name: id, type: int64}
      - {name: customer_id, type: int64, seed_role: "fk:customers"}
      - {name: amount, type: "decimal", precision: 10, scale: 2}
`))
	require.NoError(t, err)
	return reg
}

func TestRunPopulatesEveryConfiguredTable(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	w := New(Config{
		Inserter:    StoreInserter{Store: store, Registry: reg},
		Registry:    reg,
		Seed:        1,
		RowCount:    25,
		BatchSize:   10,
		ContainerID: "pop-1",
		Log:         logger.New("test"),
	})

	report := w.Run(context.Background(), []string{"customers", "orders"})

	require.True(t, report.Success, "errors: %v", report.Errors)
	assert.Equal(t, aggregator.OperationPopulate, report.Operation)
	require.NotNil(t, report.Populate)
	assert.EqualValues(t, 50, report.Populate.RowsProcessed)
	// 25 rows at batch size 10 is 3 batches per table, 6 total.
	assert.Equal(t, 6, report.Populate.BatchCount)

	n, err := store.RowCount(context.Background(), "customers")
	require.NoError(t, err)
	assert.EqualValues(t, 25, n)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	w := New(Config{
		Inserter:  StoreInserter{Store: store, Registry: reg},
		Registry:  reg,
		Seed:      1,
		RowCount:  10,
		BatchSize: 5,
		DryRun:    true,
		Log:       logger.New("test"),
	})

	report := w.Run(context.Background(), []string{"customers"})
	assert.True(t, report.Success)
	assert.Nil(t, report.Populate)

	n, err := store.RowCount(context.Background(), "customers")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestRunDefaultsToEveryRegisteredTable(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	w := New(Config{
		Inserter:  StoreInserter{Store: store, Registry: reg},
		Registry:  reg,
		Seed:      2,
		RowCount:  3,
		BatchSize: 100,
		Log:       logger.New("test"),
	})

	report := w.Run(context.Background(), nil)
	assert.Len(t, report.Tables, 2)
}

func TestRunAcrossTwoTablesKeepsIndependentOrdinalSpaces(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	w := New(Config{
		Inserter:    StoreInserter{Store: store, Registry: reg},
		Registry:    reg,
		Seed:        7,
		RowCount:    5,
		BatchSize:   2,
		ContainerID: "pop-2",
		Log:         logger.New("test"),
	})

	w.Run(context.Background(), []string{"customers", "orders"})

	customers, err := store.ListTable(context.Background(), "customers")
	require.NoError(t, err)
	orders, err := store.ListTable(context.Background(), "orders")
	require.NoError(t, err)

	// Both tables generate row 0 with pkValue ordinal+1 == 1, so both
	// must contain an id=1 row despite customers being populated first.
	foundCustomer, foundOrder := false, false
	for _, r := range customers {
		if n, ok := r.ID.ID.AsInt(); ok && n == 1 {
			foundCustomer = true
		}
	}
	for _, r := range orders {
		if n, ok := r.ID.ID.AsInt(); ok && n == 1 {
			foundOrder = true
		}
	}
	assert.True(t, foundCustomer, "customers missing id=1")
	assert.True(t, foundOrder, "orders missing id=1")
}

func TestRunReportsErrorOnUnknownTable(t *testing.T) {
	reg := testRegistry(t)
	store := memstore.New()
	w := New(Config{
		Inserter:  StoreInserter{Store: store, Registry: reg},
		Registry:  reg,
		Seed:      1,
		RowCount:  1,
		BatchSize: 1,
		Log:       logger.New("test"),
	})

	report := w.Run(context.Background(), []string{"not_a_table"})
	assert.False(t, report.Success)
	assert.Len(t, report.Errors, 1)
}
