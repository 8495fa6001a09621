package schema_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/recordkit/recordkit/schema"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeValue(t *testing.T) {
	dt := schema.Column{Name: "born_at", Type: schema.TypeDateTime}
	d := schema.Column{Name: "born_on", Type: schema.TypeDate}
	s := schema.Column{Name: "token", Type: schema.TypeString}

	when := time.Date(2021, 6, 15, 9, 30, 0, 0, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	assert.Nil(t, schema.NormalizeValue(s, nil))
	assert.Equal(t, "2021-06-15 09:30:00", schema.NormalizeValue(dt, when))
	assert.Equal(t, "2021-06-15", schema.NormalizeValue(d, when))
	assert.Nil(t, schema.NormalizeValue(dt, time.Time{}), "zero time stores as NULL")
	assert.Equal(t, "2021-06-15 09:30:00", schema.NormalizeValue(dt, &when))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", schema.NormalizeValue(s, id))

	var nilTime *time.Time
	assert.Nil(t, schema.NormalizeValue(dt, nilTime))

	n := 42
	assert.Equal(t, 42, schema.NormalizeValue(s, &n), "pointers dereference")
	assert.Equal(t, "plain", schema.NormalizeValue(s, "plain"))
}

func TestFieldColumn(t *testing.T) {
	type entity struct {
		ID        int    `db:"id"`
		FullName  string `db:"legal_name"`
		Nick      string
		BlogPosts int
		Skip      string `db:"-"`
	}
	typ := reflect.TypeOf(entity{})

	col := func(name string) string {
		f, _ := typ.FieldByName(name)
		return schema.FieldColumn(f)
	}
	assert.Equal(t, "id", col("ID"))
	assert.Equal(t, "legal_name", col("FullName"))
	assert.Equal(t, "nick", col("Nick"))
	assert.Equal(t, "blog_posts", col("BlogPosts"))
	assert.Equal(t, "", col("Skip"))
}
