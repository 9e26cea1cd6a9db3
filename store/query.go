package store

import (
	"context"

	"github.com/syssam/objstore"
	"github.com/syssam/objstore/condition"
	"github.com/syssam/objstore/dialect/sql"
	"github.com/syssam/objstore/schema"
)

// GetInstance returns the live instance with the given identifier.
func (s *Store) GetInstance(ctx context.Context, name, id string) (*Instance, error) {
	sc, err := s.GetSchema(ctx, name)
	if err != nil {
		return nil, err
	}
	instances, err := s.selectInstances(ctx, sc, condition.Eq(schema.ColumnID, id), nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, objstore.NewInstanceNotFoundError(name, id)
	}
	return instances[0], nil
}

// InstanceExists reports whether a live instance with the given identifier exists.
func (s *Store) InstanceExists(ctx context.Context, name, id string) (bool, error) {
	sc, err := s.GetSchema(ctx, name)
	if err != nil {
		return false, err
	}
	b := s.builder()
	b.WriteString("SELECT 1 FROM ").Ident(sc.TableName)
	if err := where(b, sc, condition.Eq(schema.ColumnID, id)); err != nil {
		return false, err
	}
	b.WriteString(" LIMIT 1")
	query, args, err := b.Query()
	if err != nil {
		return false, err
	}
	rows := &sql.Rows{}
	if err := s.driver.Query(ctx, query, args, rows); err != nil {
		return false, wrapError("instance_exists", err)
	}
	defer rows.Close()
	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, wrapError("instance_exists", err)
	}
	return found, nil
}

// FindInstance returns the first instance matched by f.
func (s *Store) FindInstance(ctx context.Context, f condition.SimpleFilter) (*Instance, error) {
	req := f.FilterRequest()
	req.Limit, req.Offset = 1, 0
	sc, err := s.GetSchema(ctx, f.SchemaName)
	if err != nil {
		return nil, err
	}
	orders, err := req.Orders(sc, sc.DefaultSort(), condition.WithSchema(sc.Name))
	if err != nil {
		return nil, err
	}
	instances, err := s.selectInstances(ctx, sc, req.Condition, orders, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, objstore.NewInstanceNotFoundError(f.SchemaName, "")
	}
	return instances[0], nil
}

// QueryInstances returns the page of instances matched by f and the total
// number of matching instances.
func (s *Store) QueryInstances(ctx context.Context, f condition.SimpleFilter) ([]*Instance, int64, error) {
	return s.FilterInstances(ctx, f.SchemaName, f.FilterRequest())
}

// FilterInstances returns the page of live instances selected by req and
// the total number of matching instances. The page and the count are
// computed from the same compiled predicate.
func (s *Store) FilterInstances(ctx context.Context, name string, req condition.FilterRequest) ([]*Instance, int64, error) {
	sc, err := s.GetSchema(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	limit, offset, err := req.Page()
	if err != nil {
		return nil, 0, err
	}
	orders, err := req.Orders(sc, sc.DefaultSort(), condition.WithSchema(sc.Name))
	if err != nil {
		return nil, 0, err
	}
	pred, err := condition.Build(s.Dialect(), sc, req.Condition, compileOptions(sc)...)
	if err != nil {
		return nil, 0, err
	}
	instances, err := s.page(ctx, sc, pred, orders, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.count(ctx, sc, pred)
	if err != nil {
		return nil, 0, err
	}
	return instances, total, nil
}

// selectInstances compiles cond and returns one page of matching instances.
func (s *Store) selectInstances(ctx context.Context, sc *schema.Schema, cond condition.Condition, orders []condition.Order, limit, offset int) ([]*Instance, error) {
	pred, err := condition.Build(s.Dialect(), sc, cond, compileOptions(sc)...)
	if err != nil {
		return nil, err
	}
	return s.page(ctx, sc, pred, orders, limit, offset)
}

// page selects the rows matched by pred. The identifier breaks ties between
// equal sort keys so that pages are stable.
func (s *Store) page(ctx context.Context, sc *schema.Schema, pred condition.Predicate, orders []condition.Order, limit, offset int) ([]*Instance, error) {
	cols := selectColumns(sc)
	b := s.builder()
	b.WriteString("SELECT ").IdentComma(cols...).WriteString(" FROM ").Ident(sc.TableName)
	if !pred.IsEmpty() {
		b.WriteString(" WHERE ").Join(pred)
	}
	tiebreak := true
	for i, o := range orders {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		typ, _ := sc.ColumnType(o.Column)
		condition.OrderColumn(b, typ, o.Column)
		if o.Desc {
			b.WriteString(" DESC")
		}
		if o.Column == schema.ColumnID {
			tiebreak = false
		}
	}
	if tiebreak && len(orders) > 0 {
		b.WriteString(", ").Ident(schema.ColumnID)
	}
	b.WriteString(" LIMIT ").Arg(limit).WriteString(" OFFSET ").Arg(offset)
	query, args, err := b.Query()
	if err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	if err := s.driver.Query(ctx, query, args, rows); err != nil {
		return nil, wrapError("select_instances", err)
	}
	instances, err := scanInstances(rows, sc, cols)
	if err != nil {
		return nil, wrapError("select_instances", err)
	}
	if instances == nil {
		instances = []*Instance{}
	}
	return instances, nil
}

// count returns the number of rows matched by pred.
func (s *Store) count(ctx context.Context, sc *schema.Schema, pred condition.Predicate) (int64, error) {
	b := s.builder()
	b.WriteString("SELECT COUNT(*) FROM ").Ident(sc.TableName)
	if !pred.IsEmpty() {
		b.WriteString(" WHERE ").Join(pred)
	}
	query, args, err := b.Query()
	if err != nil {
		return 0, err
	}
	rows := &sql.Rows{}
	if err := s.driver.Query(ctx, query, args, rows); err != nil {
		return 0, wrapError("count_instances", err)
	}
	defer rows.Close()
	n, err := sql.ScanInt64(rows)
	if err != nil {
		return 0, wrapError("count_instances", err)
	}
	return n, nil
}
