package person

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personrelay/internal/logger"
)

func newTestRouter(repo Repository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(NewService(repo, logger.NopLogger()), logger.NopLogger()).RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_Root(t *testing.T) {
	w := doRequest(newTestRouter(&fakeRepository{}), http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"Hello":"World"}`, w.Body.String())
}

func TestHandler_ListAll(t *testing.T) {
	repo := &fakeRepository{rows: []Person{New("1", strPtr("user1@example.com")), New("2", nil)}}
	w := doRequest(newTestRouter(repo), http.MethodGet, "/all", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["1, user1@example.com","2, None"]`, w.Body.String())
}

func TestHandler_ListAll_StoreError(t *testing.T) {
	w := doRequest(newTestRouter(&fakeRepository{err: stderrors.New("login failed")}), http.MethodGet, "/all", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["detail"], "login failed")
}

func TestHandler_CreatePerson(t *testing.T) {
	repo := &fakeRepository{}
	router := newTestRouter(repo)

	w := doRequest(router, http.MethodPost, "/person", `{"PersonID":"5","Email":null}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"PersonID":"5","Email":null}`, w.Body.String())
	assert.Len(t, repo.rows, 1)

	w = doRequest(router, http.MethodPost, "/person", `{"PersonID":"5","Email":"dup@x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")
}

func TestHandler_CreatePerson_Malformed(t *testing.T) {
	for _, body := range []string{`{`, `{"Email":"x"}`, `{"PersonID":1}`} {
		w := doRequest(newTestRouter(&fakeRepository{}), http.MethodPost, "/person", body)

		assert.Equal(t, http.StatusInternalServerError, w.Code, body)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["detail"])
	}
}
