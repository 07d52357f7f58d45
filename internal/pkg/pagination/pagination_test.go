package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func queryFor(t *testing.T, rawQuery string) Query {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/entries?"+rawQuery, nil)
	return FromContext(c)
}

func TestFromContextDefaults(t *testing.T) {
	q := queryFor(t, "")
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultSize, q.Size)
	assert.Equal(t, 0, q.Offset())
}

func TestFromContextClamps(t *testing.T) {
	q := queryFor(t, "page=-3&size=9999")
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxSize, q.Size)

	q = queryFor(t, "page=3&size=garbage")
	assert.Equal(t, 3, q.Page)
	assert.Equal(t, DefaultSize, q.Size)
	assert.Equal(t, 2*DefaultSize, q.Offset())
}
