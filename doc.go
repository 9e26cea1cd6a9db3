// Package objstore is a schema-driven object store over a relational
// database.
//
// Schemas are declared at runtime and materialized as tables; instances are
// validated against their schema before they are written, and conditions
// are compiled into parameterized statements. The root package holds the
// error kinds, the store Config and the schema Cache shared by the
// sub-packages:
//
//   - schema/field: closed set of column types, coercion and validation.
//   - dialect/sql: database/sql driver adapter, identifier and literal safety.
//   - dialect/sql/schema: DDL generation and column diffs.
//   - condition: condition trees and their compiler.
//   - store: schema lifecycle and bulk instance operations.
//
// A minimal program:
//
//	drv, err := sql.Open("sqlite", "file:store.db")
//	if err != nil {
//		return err
//	}
//	st, err := store.New(drv)
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//	_, err = st.CreateSchema(ctx, schema.CreateSchemaRequest{
//		Name: "product",
//		Columns: []schema.ColumnDefinition{
//			schema.Column("sku", field.String()).NotNull().UniqueKey(),
//			schema.Column("price", field.Decimal(10, 2)),
//		},
//	})
package objstore
