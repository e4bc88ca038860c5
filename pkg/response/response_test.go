package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func record(fn func(c *gin.Context)) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)
	return w
}

func TestFail(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		code    int
		want    string
	}{
		{"bad request", http.StatusBadRequest, "codice_articolo is required", CodeFailed, "codice_articolo is required"},
		{"unauthorized", http.StatusUnauthorized, "session expired", CodeUnauthorized, "session expired"},
		{"not found", http.StatusNotFound, "item not found", CodeNotFound, "item not found"},
		{"conflict", http.StatusConflict, "username already taken", CodeConflict, "username already taken"},
		{"internal hides detail", http.StatusInternalServerError, "", CodeFailed, "internal server error"},
		{"internal hides message", http.StatusInternalServerError, "disk full", CodeFailed, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := record(func(c *gin.Context) { Fail(c, tt.status, tt.message) })
			assert.Equal(t, tt.status, w.Code)

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.want, body.Message)
			assert.Nil(t, body.Data)
		})
	}
}

func TestSuccessEnvelope(t *testing.T) {
	w := record(func(c *gin.Context) { Created(c, gin.H{"id": 7}) })
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"code":0,"message":"created","data":{"id":7}}`, w.Body.String())
}

func TestAttachment(t *testing.T) {
	w := record(func(c *gin.Context) {
		Attachment(c, "inventario.csv", "text/csv; charset=utf-8", []byte("a,b\n"))
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="inventario.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "a,b\n", w.Body.String())
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `inline; filename="foto.png"`, ContentDisposition("inline", "foto.png"))
	assert.Equal(t, `attachment; filename="a\"b.zip"`, ContentDisposition("attachment", "a\"b.zip"))
	assert.Equal(t, `attachment; filename="ab.zip"`, ContentDisposition("attachment", "a\r\nb.zip"))
}
