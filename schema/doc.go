// Package schema declares object schemas: the named, versionless description
// of a table's columns, indexes and management flags.
//
// A schema is created from a CreateSchemaRequest and changed only through an
// UpdateSchemaRequest, which replaces the column set and optionally the
// index set:
//
//	req := schema.CreateSchemaRequest{
//	    Name: "Product",
//	    Columns: []schema.ColumnDefinition{
//	        schema.Column("sku", field.String()).NotNull().UniqueKey(),
//	        schema.Column("price", field.Decimal(10, 2)).NotNull().WithDefault("0"),
//	        schema.Column("in_stock", field.Boolean()).WithDefault(true),
//	        schema.Column("status", field.Enum("draft", "active")),
//	    },
//	    Indexes: []index.Definition{
//	        index.Columns("status", "price").Definition(),
//	    },
//	}
//
// An empty table name is derived from the schema name: "Product" becomes
// "products", "OrderItem" becomes "order_items".
//
// # Managed columns
//
// Every table has an "id" text primary key. Depending on the Flags, the store
// also manages "created_at", "updated_at" and the soft-delete flag "deleted".
// A user column cannot take the name of a managed column that is enabled.
package schema
