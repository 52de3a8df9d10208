package app

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type Database struct {
	*sqlx.DB
	Logger *logrus.Logger
}

type Criteria interface{}

// CriteriaParser lets a criteria field add its own clauses.
type CriteriaParser interface {
	ParseCriteria(sb *squirrel.SelectBuilder) error
}

// EntityIsNull on a criteria field filters on "<column> IS NULL" when true.
type EntityIsNull bool

// ParseCriteria turns the non-zero fields of a criteria struct into where
// clauses keyed by their db tag. Limit, Offset and OrderBy are handled by name.
func (db *Database) ParseCriteria(sb *squirrel.SelectBuilder, c Criteria) error {
	c_value := reflect.ValueOf(c)
	if c_value.Kind() == reflect.Ptr {
		c_value = c_value.Elem()
	}
	typeOfT := c_value.Type()
	for i := 0; i < c_value.NumField(); i++ {
		f := c_value.Field(i)
		ft := typeOfT.Field(i)
		if ft.PkgPath != "" {
			continue
		}

		if v, ok := (f.Interface()).(CriteriaParser); ok {
			if err := v.ParseCriteria(sb); err != nil {
				return err
			}
			continue
		}

		if f.IsZero() || f.Kind() == reflect.Struct || f.Kind() == reflect.Slice {
			continue
		}

		switch ft.Name {
		case "Limit":
			*sb = sb.Limit(uint64(f.Int()))
		case "Offset":
			*sb = sb.Offset(uint64(f.Int()))
		case "OrderBy":
			*sb = sb.OrderBy(f.String())
		default:
			tag, ok := ft.Tag.Lookup("db")
			if !ok || tag == "-" {
				continue
			}

			switch f.Type() {
			case reflect.TypeOf(EntityIsNull(false)):
				*sb = sb.Where(squirrel.Eq{tag: nil})
			default:
				db.Logger.Tracef("%d: %s %s = %v -> %s", i, ft.Name, f.Type(), f.Interface(), tag)
				*sb = sb.Where(squirrel.Eq{tag: f.Interface()})
			}
		}
	}

	return nil
}

func (db *Database) selectFor(table string, criteria Criteria) (string, []interface{}, error) {
	sb := squirrel.Select("*").From(table)
	if err := db.ParseCriteria(&sb, criteria); err != nil {
		return "", nil, err
	}

	return sb.ToSql()
}

func (db *Database) Match(ctx context.Context, dst interface{}, table string, criteria Criteria) error {
	query, args, err := db.selectFor(table, criteria)
	if err != nil {
		return err
	}

	db.Logger.WithField("sql", "match").Tracef("Executing %s with args %v", query, args)

	return db.SelectContext(ctx, dst, query, args...)
}

func (db *Database) MatchOne(ctx context.Context, dst interface{}, table string, criteria Criteria) error {
	query, args, err := db.selectFor(table, criteria)
	if err != nil {
		return err
	}

	db.Logger.WithField("sql", "matchone").Tracef("Executing %s with args %v", query, args)

	return db.GetContext(ctx, dst, query, args...)
}

// Insert writes every db tagged field of entity into table. A zero Id is
// filled from the driver's last insert id.
func (db *Database) Insert(ctx context.Context, entity interface{}, table string) error {
	ignored_fields := map[string]bool{}

	values := reflect.ValueOf(entity)
	if values.Kind() == reflect.Ptr {
		values = values.Elem()
	}
	id := values.FieldByName("Id")
	if id.IsValid() && id.IsZero() {
		ignored_fields["Id"] = true
	}

	query, args, err := squirrel.Insert(table).SetMap(structToQueryMap(entity, ignored_fields)).ToSql()
	if err != nil {
		return err
	}
	db.Logger.WithField("sql", "insert").Tracef("Executing %s with args %v", query, args)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	if !ignored_fields["Id"] || !id.CanSet() {
		return nil
	}

	last_id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	id.SetUint(uint64(last_id))

	return nil
}

func (db *Database) Delete(ctx context.Context, id uint64, table string) (int64, error) {
	if id == 0 {
		return 0, fmt.Errorf("missing id for entity: %s", table)
	}

	query, args, err := squirrel.Delete(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return 0, err
	}
	db.Logger.WithField("sql", "delete").Tracef("Executing %s with args %v", query, args)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// ExecBuilder runs an insert, update or delete builder and returns the
// number of affected rows.
func (db *Database) ExecBuilder(ctx context.Context, b squirrel.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	db.Logger.WithField("sql", "exec").Tracef("Executing %s with args %v", query, args)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func structToQueryMap(s interface{}, ignore map[string]bool) map[string]interface{} {
	m := make(map[string]interface{})
	t := reflect.TypeOf(s)
	v := reflect.ValueOf(s)

	if v.Kind() == reflect.Ptr {
		v = v.Elem()
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		tf := t.Field(i)
		tag := tf.Tag.Get("db")
		if len(tag) == 0 || tag == "-" {
			continue
		}

		if ignore[tf.Name] {
			continue
		}

		vf := v.Field(i)

		if _, ok := vf.Interface().(driver.Valuer); !ok && vf.Kind() == reflect.Interface {
			data, err := json.Marshal(vf.Interface())
			if err != nil {
				panic(err)
			}

			m[tag] = data
		} else {
			m[tag] = vf.Interface()
		}
	}

	return m
}
