package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/condition"
)

const productYAML = `name: product
description: Catalog items
columns:
  - name: sku
    type: {type: string}
    nullable: false
    unique: true
  - name: price
    type: {type: decimal, precision: 10, scale: 2}
  - name: stock
    type: {type: integer}
    nullable: false
    default: 0
`

// run executes the command line against the SQLite database at dsn.
func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--driver", "sqlite", "--dsn", dsn}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestSchemaCommands(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "store.db")
	file := writeFile(t, dir, "product.yaml", productYAML)

	out, err := run(t, dsn, "schema", "apply", "-f", file)
	require.NoError(t, err)
	assert.Equal(t, "schema product applied (table products, 3 columns)\n", out)

	writeFile(t, dir, "product.yaml", productYAML+`  - name: color
    type: {type: enum, values: [red, blue]}
`)
	out, err = run(t, dsn, "schema", "apply", "-f", file)
	require.NoError(t, err)
	assert.Contains(t, out, "4 columns")

	out, err = run(t, dsn, "schema", "list")
	require.NoError(t, err)
	rows := lines(out)
	require.Len(t, rows, 2)
	assert.True(t, strings.HasPrefix(rows[0], "NAME"))
	assert.Contains(t, rows[1], "products")

	out, err = run(t, dsn, "schema", "get", "product")
	require.NoError(t, err)
	var got struct {
		Name    string `json:"name"`
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "product", got.Name)
	require.Len(t, got.Columns, 4)
	assert.Equal(t, "color", got.Columns[3].Name)

	out, err = run(t, dsn, "schema", "delete", "product")
	require.NoError(t, err)
	assert.Equal(t, "schema product deleted\n", out)
	_, err = run(t, dsn, "schema", "get", "product")
	assert.True(t, objstore.IsSchemaNotFound(err))

	out, err = run(t, dsn, "schema", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "false")
}

func TestSchemaApplyRejectsFlagChange(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "store.db")
	file := writeFile(t, dir, "product.yaml", productYAML)
	_, err := run(t, dsn, "schema", "apply", "-f", file)
	require.NoError(t, err)

	writeFile(t, dir, "product.yaml", productYAML+`flags:
  auto_id: true
  auto_created_at: true
  auto_updated_at: true
  soft_delete: false
`)
	_, err = run(t, dsn, "schema", "apply", "-f", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flags of schema product cannot be changed")
}

func TestSchemaApplyInvalid(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "store.db")

	_, err := run(t, dsn, "schema", "apply", "-f", writeFile(t, dir, "a.yaml", "columns: []\n"))
	assert.ErrorContains(t, err, "schema name is required")

	_, err = run(t, dsn, "schema", "apply", "-f", writeFile(t, dir, "b.yaml", "name: [\n"))
	assert.ErrorContains(t, err, "parse")

	_, err = run(t, dsn, "schema", "apply", "-f", writeFile(t, dir, "c.yaml", `name: thing
columns:
  - name: select
    type: {type: string}
`))
	assert.True(t, objstore.IsValidationError(err) || objstore.IsInvalidColumnDefinition(err), "got %v", err)

	_, err = run(t, dsn, "schema", "apply")
	assert.Error(t, err, "--file is required")
}

func TestInstanceCommands(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "store.db")
	_, err := run(t, dsn, "schema", "apply", "-f", writeFile(t, dir, "product.yaml", productYAML))
	require.NoError(t, err)

	out, err := run(t, dsn, "instance", "create", "product", "--data",
		`[{"sku":"A1","price":"9.50"},{"sku":"B2","price":120,"stock":4},{"sku":"C3","price":300.25,"stock":1}]`)
	require.NoError(t, err)
	created := lines(out)
	require.Len(t, created, 3)
	var first struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal([]byte(created[0]), &first))
	assert.Equal(t, "A1", first.Properties["sku"])
	assert.NotEmpty(t, first.ID)

	out, err = run(t, dsn, "instance", "get", "product", first.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"sku":"A1"`)

	out, err = run(t, dsn, "instance", "query", "product",
		"--filter", `{"op":"gt","field":"price","value":100}`, "--sort", "price:desc")
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], `"sku":"C3"`)
	assert.Contains(t, got[1], `"sku":"B2"`)

	out, err = run(t, dsn, "instance", "query", "product", "--sort", "sku", "--limit", "1", "--offset", "1")
	require.NoError(t, err)
	got = lines(out)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], `"sku":"B2"`)

	_, err = run(t, dsn, "instance", "create", "product", "--data", `{"sku":"A1"}`)
	assert.True(t, objstore.IsTransactionFailed(err), "duplicate sku: %v", err)

	_, err = run(t, dsn, "instance", "query", "product", "--filter", `{"op":"eq","field":"colour","value":1}`)
	assert.True(t, objstore.IsUnknownColumn(err))

	_, err = run(t, dsn, "instance", "create", "product", "--data", `{"sku":"X"}`, "-f", "x.json")
	assert.Error(t, err)
}

func TestOpenErrors(t *testing.T) {
	_, err := run(t, "", "schema", "list")
	assert.ErrorContains(t, err, "--dsn is required")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--driver", "mysql", "--dsn", "x", "schema", "list"})
	assert.ErrorContains(t, cmd.Execute(), `unsupported driver "mysql"`)

	dir := t.TempDir()
	cfg := writeFile(t, dir, "objstore.yaml", "metadata_table: \"bad name\"\n")
	_, err = run(t, filepath.Join(dir, "store.db"), "--config", cfg, "schema", "list")
	assert.ErrorContains(t, err, "invalid metadata_table")
}

func TestFilterRequest(t *testing.T) {
	req, err := filterRequest(`{"op":"and","conditions":[{"op":"eq","field":"sku","value":"A"},{"op":"is_null","field":"price"}]}`,
		[]string{"price:desc", "sku"}, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, condition.OpAnd, req.Condition.Op())
	assert.Equal(t, []string{"price", "sku"}, req.SortBy)
	assert.Equal(t, []string{"desc", "asc"}, req.SortOrder)
	assert.Equal(t, 10, req.Limit)
	assert.Equal(t, 20, req.Offset)

	_, err = filterRequest(`{"op":"between"}`, nil, 0, 0)
	assert.ErrorContains(t, err, "--filter")
	_, err = filterRequest("", []string{":desc"}, 0, 0)
	assert.ErrorContains(t, err, "--sort")
}

func TestDecodePayloads(t *testing.T) {
	ps, err := decodePayloads([]byte(` {"price": 12.10} `))
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, json.Number("12.10"), ps[0]["price"])

	ps, err = decodePayloads([]byte(`[{"a":1},{"a":2}]`))
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	_, err = decodePayloads([]byte(`[1]`))
	assert.Error(t, err)
	_, err = decodePayloads([]byte(``))
	assert.Error(t, err)
}

func TestSyncDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yml", "")
	writeFile(t, dir, "a.yaml", "")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.yaml"), 0o755))

	var applied []string
	err := syncDir(dir, func(path string) error {
		applied = append(applied, filepath.Base(path))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml", "b.yml"}, applied)

	boom := errors.New("boom")
	applied = nil
	err = syncDir(dir, func(path string) error {
		applied = append(applied, filepath.Base(path))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a.yaml"}, applied)

	assert.Error(t, syncDir(filepath.Join(dir, "missing"), func(string) error { return nil }))
}

func TestSchemaSync(t *testing.T) {
	dir := t.TempDir()
	schemas := filepath.Join(dir, "schemas")
	require.NoError(t, os.Mkdir(schemas, 0o755))
	writeFile(t, schemas, "01_product.yaml", productYAML)
	writeFile(t, schemas, "02_supplier.yaml", `name: supplier
columns:
  - name: name
    type: {type: string}
`)
	dsn := filepath.Join(dir, "store.db")
	out, err := run(t, dsn, "schema", "sync", schemas)
	require.NoError(t, err)
	assert.Equal(t, "01_product.yaml: schema product applied\n02_supplier.yaml: schema supplier applied\n", out)

	out, err = run(t, dsn, "schema", "list")
	require.NoError(t, err)
	assert.Len(t, lines(out), 3)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	applied := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, dir, slog.New(slog.DiscardHandler), func(path string) error {
			select {
			case applied <- path:
			default:
			}
			return nil
		})
	}()

	path := filepath.Join(dir, "product.yaml")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644)
		_ = os.WriteFile(path, []byte(productYAML), 0o644)
		select {
		case p := <-applied:
			return p == path
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
