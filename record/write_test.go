package record_test

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/recordkit/recordkit/dialect"
	"github.com/recordkit/recordkit/sqlgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert_BackfillsLastInsertID(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "users" ("name", "company_id") VALUES (?, ?)`)).
		WithArgs("ada", 7).
		WillReturnResult(sqlmock.NewResult(42, 1))

	u := &User{Name: "ada", CompanyID: 7}
	require.NoError(t, e.Insert(context.Background(), u))
	assert.Equal(t, 42, u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_KeepsCallerAssignedKey(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "users" ("id", "name", "company_id") VALUES (?, ?, ?)`)).
		WithArgs(5, "ada", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &User{ID: 5, Name: "ada"}
	require.NoError(t, e.Insert(context.Background(), u))
	assert.Equal(t, 5, u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DrawsPostgresSequence(t *testing.T) {
	e, mock := newTestEngine(t, dialect.Postgres)

	mock.ExpectQuery("SELECT kcu.column_name").
		WithArgs("public", "users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery("SELECT column_name, data_type, is_nullable").
		WithArgs("public", "users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("id", "integer", "NO").
			AddRow("name", "character varying", "YES").
			AddRow("company_id", "integer", "YES"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT nextval($1)`)).
		WithArgs("users_id_seq").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "users" ("id", "name", "company_id") VALUES ($1, $2, $3)`)).
		WithArgs(7, "ada", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &User{Name: "ada"}
	require.NoError(t, e.Insert(context.Background(), u))
	assert.Equal(t, 7, u.ID, "sequence value is assigned before the insert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_RequiresPointer(t *testing.T) {
	e, _ := newTestEngine(t, dialect.SQLite)
	assert.Error(t, e.Insert(context.Background(), User{Name: "ada"}))
}

func TestUpdate(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "users" SET "name" = ?, "company_id" = ? WHERE "id" = ?`)).
		WithArgs("ada", 7, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &User{ID: 5, Name: "ada", CompanyID: 7}
	require.NoError(t, e.Update(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_EmptyPrimaryKeyFailsBeforeSQL(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	err := e.Update(context.Background(), &User{Name: "ada"})
	require.Error(t, err)

	var argErr *sqlgen.ArgumentError
	assert.ErrorAs(t, err, &argErr)
	assert.NoError(t, mock.ExpectationsWereMet(), "no statement may reach the database")
}

func TestDelete(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "users" WHERE "id" = ?`)).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, e.Delete(context.Background(), &User{ID: 5}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_EmptyPrimaryKeyFailsBeforeSQL(t *testing.T) {
	e, mock := newTestEngine(t, dialect.SQLite)
	expectUsers(mock)

	err := e.Delete(context.Background(), &User{})
	require.Error(t, err)

	var argErr *sqlgen.ArgumentError
	assert.ErrorAs(t, err, &argErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
