package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/sirupsen/logrus"
)

type widget struct {
	Id       uint64  `db:"id"`
	Name     string  `db:"name"`
	ParentId *uint64 `db:"parent_id"`
	Size     int     `db:"size"`
}

type minSize int

func (m minSize) ParseCriteria(sb *squirrel.SelectBuilder) error {
	if m > 0 {
		*sb = sb.Where(squirrel.GtOrEq{"size": int(m)})
	}
	return nil
}

type widgetCriteria struct {
	Id       uint64       `db:"id"`
	Name     string       `db:"name"`
	NoParent EntityIsNull `db:"parent_id"`
	MinSize  minSize
	Ignored  string `db:"-"`

	OrderBy string
	Limit   int
	Offset  int
}

var widgetStructure = []string{
	"INVALID",
	"CREATE TABLE widgets (id INTEGER NOT NULL PRIMARY KEY, name VARCHAR(64) NOT NULL, parent_id INTEGER NULL, size INTEGER NOT NULL)",
}

func openTestDatabase(t *testing.T) *Database {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := OpenDatabase(DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "app.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.CheckAndUpdateDatabase(context.Background(), widgetStructure); err != nil {
		t.Fatal(err)
	}

	return db
}

func TestCheckAndUpdateDatabase(t *testing.T) {
	db := openTestDatabase(t)
	ctx := context.Background()

	if err := db.CheckAndUpdateDatabase(ctx, widgetStructure); err != nil {
		t.Fatal(err)
	}

	next := append(widgetStructure, "CREATE INDEX widgets_name ON widgets (name)")
	if err := db.CheckAndUpdateDatabase(ctx, next); err != nil {
		t.Fatal(err)
	}

	version, err := db.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 {
		t.Fatalf("Expected version 2, got %d", version)
	}
}

func TestRepository(t *testing.T) {
	db := openTestDatabase(t)
	ctx := context.Background()
	repo := NewDatabaseRepository(db, "widgets")

	parent := uint64(1)
	widgets := []widget{
		{Id: 1, Name: "root", Size: 10},
		{Id: 2, Name: "leaf", ParentId: &parent, Size: 3},
		{Id: 3, Name: "leaf", ParentId: &parent, Size: 7},
		{Name: "auto", Size: 1},
	}
	for i := range widgets {
		if err := repo.Create(ctx, &widgets[i]); err != nil {
			t.Fatal(err)
		}
	}
	if widgets[3].Id != 4 {
		t.Fatalf("Expected generated id 4, got %d", widgets[3].Id)
	}

	tests := []struct {
		name     string
		criteria widgetCriteria
		ids      []uint64
	}{
		{"all", widgetCriteria{OrderBy: "id"}, []uint64{1, 2, 3, 4}},
		{"by name", widgetCriteria{Name: "leaf", OrderBy: "id"}, []uint64{2, 3}},
		{"no parent", widgetCriteria{NoParent: true, OrderBy: "id"}, []uint64{1, 4}},
		{"custom parser", widgetCriteria{MinSize: 5, OrderBy: "id"}, []uint64{1, 3}},
		{"ignored field", widgetCriteria{Id: 1, Ignored: "x"}, []uint64{1}},
		{"page", widgetCriteria{OrderBy: "id DESC", Limit: 2, Offset: 1}, []uint64{3, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var found []widget
			if err := repo.List(ctx, &found, tt.criteria); err != nil {
				t.Fatal(err)
			}
			if len(found) != len(tt.ids) {
				t.Fatalf("Expected %v, got %+v", tt.ids, found)
			}
			for i, w := range found {
				if w.Id != tt.ids[i] {
					t.Fatalf("Expected %v, got %+v", tt.ids, found)
				}
			}
		})
	}

	var got widget
	if err := repo.Get(ctx, &got, widgetCriteria{Id: 2}); err != nil {
		t.Fatal(err)
	}
	if got.Name != "leaf" || got.ParentId == nil || *got.ParentId != 1 {
		t.Fatalf("Unexpected widget %+v", got)
	}

	if err := repo.Delete(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, 2); err == nil {
		t.Fatal("Deleting a missing row must fail")
	}

	n, err := db.ExecBuilder(ctx, squirrel.Update("widgets").Set("size", 0).Where(squirrel.Eq{"name": "leaf"}))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Expected one leaf left, updated %d", n)
	}
}
