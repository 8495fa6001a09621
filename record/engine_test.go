package record_test

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/recordkit/recordkit/adapter"
	"github.com/recordkit/recordkit/dialect"
	"github.com/recordkit/recordkit/record"
	"github.com/recordkit/recordkit/schema"
	"github.com/recordkit/recordkit/sqlgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	ID        int    `db:"id"`
	Name      string `db:"name"`
	CompanyID int    `db:"company_id"`

	Posts   []*Post  `rel:"posts"`
	Company *Company `rel:"company"`
	Tags    []Tag    `rel:"tags"`

	readonly bool
}

func (u *User) MarkReadonly() { u.readonly = true }

type Post struct {
	ID     int    `db:"id"`
	UserID int    `db:"user_id"`
	Title  string `db:"title"`
}

type Company struct {
	ID   int    `db:"id"`
	Name string `db:"name"`
}

type Tag struct {
	ID    int    `db:"id"`
	Label string `db:"label"`
}

var pragmaCols = []string{"cid", "name", "type", "notnull", "dflt_value", "pk"}

func newTestEngine(t *testing.T, d dialect.Dialect) (*record.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := record.NewEngine(adapter.New(d, db))
	require.NoError(t, e.Register(User{}, schema.Definition{
		Aliases: map[string]string{"login": "name"},
		Relationships: []schema.Relationship{
			{Kind: schema.HasMany, Name: "posts"},
			{Kind: schema.BelongsTo, Name: "company"},
			{Kind: schema.HasAndBelongsToMany, Name: "tags"},
		},
	}))
	require.NoError(t, e.Register(Post{}, schema.Definition{}))
	require.NoError(t, e.Register(Company{}, schema.Definition{}))
	require.NoError(t, e.Register(Tag{}, schema.Definition{}))
	return e, mock
}

// expectPragma queues the sqlite introspection for a table. Each column
// triple is name, type, pk.
func expectPragma(mock sqlmock.Sqlmock, table string, cols ...[3]interface{}) {
	rows := sqlmock.NewRows(pragmaCols)
	for i, c := range cols {
		rows.AddRow(i, c[0], c[1], 0, nil, c[2])
	}
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("` + table + `")`)).WillReturnRows(rows)
}

func expectUsers(mock sqlmock.Sqlmock) {
	expectPragma(mock, "users",
		[3]interface{}{"id", "INTEGER", 1},
		[3]interface{}{"name", "TEXT", 0},
		[3]interface{}{"company_id", "INTEGER", 0})
}

func expectPosts(mock sqlmock.Sqlmock) {
	expectPragma(mock, "posts",
		[3]interface{}{"id", "INTEGER", 1},
		[3]interface{}{"user_id", "INTEGER", 0},
		[3]interface{}{"title", "TEXT", 0})
}

func expectCompanies(mock sqlmock.Sqlmock) {
	expectPragma(mock, "companies",
		[3]interface{}{"id", "INTEGER", 1},
		[3]interface{}{"name", "TEXT", 0})
}

func expectTags(mock sqlmock.Sqlmock) {
	expectPragma(mock, "tags",
		[3]interface{}{"id", "INTEGER", 1},
		[3]interface{}{"label", "TEXT", 0})
}

func TestFind_MaterializesRows(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" ORDER BY name`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).
			AddRow(1, []byte("ada"), 10).
			AddRow(2, "grace", 20))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Order: "name"}))

	require.Len(t, users, 2)
	assert.Equal(t, 1, users[0].ID)
	assert.Equal(t, "ada", users[0].Name, "byte-slice driver values convert to string")
	assert.Equal(t, "grace", users[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_MapConditions(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "id" IN (?, ?) AND "name" = ?`)).
		WithArgs(1, 2, "ada").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(1, "ada", 10))

	var users []User
	err := e.Find(context.Background(), &users, record.Query{
		Conditions: map[string]interface{}{"name": "ada", "id": []int{1, 2}},
	})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_FragmentConditionsWithSlice(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE name = ? AND id IN (?, ?)`)).
		WithArgs("ada", 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}))

	var users []User
	err := e.Find(context.Background(), &users, record.Query{
		Conditions: sqlgen.Fragment{SQL: "name = ? AND id IN (?)", Args: []interface{}{"ada", []int{1, 2}}},
	})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_RelationshipJoin(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)
	expectPosts(mock)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT "users".* FROM "users" INNER JOIN "posts" ON "users"."id" = "posts"."user_id"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(1, "ada", 10))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Joins: []string{"posts"}}))
	require.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_LiteralJoinPassesThrough(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "users" LEFT JOIN audits ON audits.user_id = users.id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}))

	var users []User
	err := e.Find(context.Background(), &users, record.Query{
		Joins: []string{"LEFT JOIN audits ON audits.user_id = users.id"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_UnknownJoinFailsBeforeSQL(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	var users []User
	err := e.Find(context.Background(), &users, record.Query{Joins: []string{"ghosts"}})
	require.Error(t, err)

	var relErr *schema.RelationshipError
	assert.ErrorAs(t, err, &relErr)
	assert.NoError(t, mock.ExpectationsWereMet(), "no row query may run")
}

func TestFind_UnknownIncludeFailsBeforeSQL(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	var users []User
	err := e.Find(context.Background(), &users, record.Query{Include: []string{"ghosts"}})
	require.Error(t, err)

	var relErr *schema.RelationshipError
	assert.ErrorAs(t, err, &relErr)
	assert.NoError(t, mock.ExpectationsWereMet(), "no row query may run")
}

func TestFind_EagerHasMany(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).
			AddRow(1, "ada", 10).
			AddRow(2, "grace", 20))
	expectPosts(mock)
	// One batched query for every parent, never one per parent.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?, ?)`)).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(1, 1, "a").
			AddRow(2, 1, "b").
			AddRow(3, 2, "c"))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Include: []string{"posts"}}))

	require.Len(t, users, 2)
	require.Len(t, users[0].Posts, 2)
	assert.Equal(t, "a", users[0].Posts[0].Title)
	assert.Equal(t, "b", users[0].Posts[1].Title)
	require.Len(t, users[1].Posts, 1)
	assert.Equal(t, "c", users[1].Posts[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_EagerHasManyNoChildren(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(1, "ada", 10))
	expectPosts(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?)`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Include: []string{"posts"}}))

	require.Len(t, users, 1)
	assert.NotNil(t, users[0].Posts, "childless parents get an empty collection, not nil")
	assert.Empty(t, users[0].Posts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_EagerHasManyIdempotent(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).
			AddRow(1, "ada", 10).
			AddRow(2, "grace", 20))
	expectPosts(mock)
	// Requesting the same relationship twice loads twice; attachment is a
	// wholesale replacement, so the second pass cannot duplicate children.
	childRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(1, 1, "a").
			AddRow(2, 1, "b")
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?, ?)`)).
		WithArgs(1, 2).
		WillReturnRows(childRows())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "user_id" IN (?, ?)`)).
		WithArgs(1, 2).
		WillReturnRows(childRows())

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Include: []string{"posts", "posts"}}))

	require.Len(t, users, 2)
	require.Len(t, users[0].Posts, 2)
	assert.Equal(t, "a", users[0].Posts[0].Title)
	assert.Equal(t, "b", users[0].Posts[1].Title)
	require.NotNil(t, users[1].Posts, "a childless parent keeps its empty collection through the second pass")
	assert.Empty(t, users[1].Posts)
	assert.Equal(t, "grace", users[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_EagerBelongsTo(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).
			AddRow(1, "ada", 10).
			AddRow(2, "grace", 10))
	expectCompanies(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "companies" WHERE "id" IN (?)`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(10, "Initech"))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Include: []string{"company"}}))

	require.Len(t, users, 2)
	require.NotNil(t, users[0].Company)
	assert.Equal(t, "Initech", users[0].Company.Name)
	require.NotNil(t, users[1].Company)
	assert.Equal(t, "Initech", users[1].Company.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_EagerHasAndBelongsToMany(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).
			AddRow(1, "ada", 10).
			AddRow(2, "grace", 20))
	expectTags(mock)
	// Exactly two secondary queries: the join table, then the targets.
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT "user_id", "tag_id" FROM "tags_users" WHERE "user_id" IN (?, ?)`)).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "tag_id"}).
			AddRow(1, 100).
			AddRow(1, 101).
			AddRow(2, 100))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tags" WHERE "id" IN (?, ?)`)).
		WithArgs(100, 101).
		WillReturnRows(sqlmock.NewRows([]string{"id", "label"}).
			AddRow(100, "go").
			AddRow(101, "sql"))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Include: []string{"tags"}}))

	require.Len(t, users, 2)
	require.Len(t, users[0].Tags, 2)
	assert.Equal(t, "go", users[0].Tags[0].Label)
	assert.Equal(t, "sql", users[0].Tags[1].Label)
	require.Len(t, users[1].Tags, 1)
	assert.Equal(t, "go", users[1].Tags[0].Label)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_EagerSkipsWhenNoParents(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Include: []string{"posts"}}))
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet(), "an empty result set loads nothing")
}

func TestFind_Readonly(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(1, "ada", 10))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{Readonly: true}))
	require.Len(t, users, 1)
	assert.True(t, users[0].readonly)
}

func TestFindFirstAndLast(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(1, "ada", 10))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" ORDER BY id DESC LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(9, "grace", 20))

	var first User
	found, err := e.FindFirst(context.Background(), &first, record.Query{})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, first.ID)

	var last User
	found, err = e.FindLast(context.Background(), &last, record.Query{})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 9, last.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindFirst_NoMatch(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}))

	var u User
	found, err := e.FindFirst(context.Background(), &u, record.Query{})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, u.ID)
}

func TestFindBy(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE name=? AND company_id=?`)).
		WithArgs("ada", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(1, "ada", 10))

	var users []User
	require.NoError(t, e.FindBy(context.Background(), &users, "name_and_company_id", "ada", 10))
	require.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBy_Alias(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE name=?`)).
		WithArgs("ada").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(1, "ada", 10))

	var users []User
	require.NoError(t, e.FindBy(context.Background(), &users, "login", "ada"))
	require.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "users" WHERE "company_id" = ?`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := e.Count(context.Background(), "User", record.Query{
		Conditions: map[string]interface{}{"company_id": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCount_ValidatesIncludes(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	// An undeclared include fails before any count query runs.
	_, err := e.Count(context.Background(), "User", record.Query{Include: []string{"bogus"}})
	var relErr *schema.RelationshipError
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, "bogus", relErr.Relationship)
	assert.NoError(t, mock.ExpectationsWereMet(), "no count query may run")

	// A declared include is accepted but never loaded.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := e.Count(context.Background(), "User", record.Query{Include: []string{"posts"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFind_RejectsBadDest(t *testing.T) {
	e, _ := newTestEngine(t, dialect.SQLite)

	var u User
	assert.Error(t, e.Find(context.Background(), &u, record.Query{}), "non-slice dest")
	assert.Error(t, e.Find(context.Background(), []User{}, record.Query{}), "non-pointer dest")
}

func TestFind_FromOverride(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "archived_users"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company_id"}).AddRow(1, "ada", 10))

	var users []User
	require.NoError(t, e.Find(context.Background(), &users, record.Query{From: "archived_users"}))
	require.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type Author struct {
	ID    int     `db:"id"`
	Books []*Book `rel:"recent_books"`
}

type Book struct {
	ID       int    `db:"id"`
	AuthorID int    `db:"author_id"`
	Title    string `db:"title"`
}

func TestFind_EagerRelationshipOverrides(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := record.NewEngine(adapter.New(dialect.SQLite, db))
	require.NoError(t, e.Register(Author{}, schema.Definition{
		Relationships: []schema.Relationship{{
			Kind:          schema.HasMany,
			Name:          "recent_books",
			Target:        "Book",
			ForeignKey:    []string{"author_id"},
			Conditions:    "published = ?",
			ConditionArgs: []interface{}{true},
			Order:         "id DESC",
		}},
	}))
	require.NoError(t, e.Register(Book{}, schema.Definition{}))

	expectPragma(mock, "authors", [3]interface{}{"id", "INTEGER", 1})
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "authors"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	expectPragma(mock, "books",
		[3]interface{}{"id", "INTEGER", 1},
		[3]interface{}{"author_id", "INTEGER", 0},
		[3]interface{}{"title", "TEXT", 0})
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM "books" WHERE "author_id" IN (?) AND published = ? ORDER BY id DESC`)).
		WithArgs(1, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "title"}).
			AddRow(9, 1, "newest").
			AddRow(3, 1, "older"))

	var authors []Author
	require.NoError(t, e.Find(context.Background(), &authors, record.Query{Include: []string{"recent_books"}}))

	require.Len(t, authors, 1)
	require.Len(t, authors[0].Books, 2)
	assert.Equal(t, "newest", authors[0].Books[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}
