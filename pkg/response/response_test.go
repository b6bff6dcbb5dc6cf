package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

func performError(t *testing.T, diagnostics bool, err error) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Diagnostics(diagnostics))
	r.GET("/boom", func(c *gin.Context) { Error(c, err) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body["error"].(map[string]interface{})
}

func TestErrorHidesInternalCauseOutsideDiagnostics(t *testing.T) {
	cause := errors.New("pq: connection refused to 10.0.0.3")
	status, body := performError(t, false, appErrors.Wrap(cause, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "failed to load enrollment", body["message"])
	assert.NotContains(t, body, "debug")
}

func TestErrorIncludesCauseInDiagnostics(t *testing.T) {
	cause := errors.New("pq: connection refused")
	_, body := performError(t, true, appErrors.Wrap(cause, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "enrollment store unavailable"))

	assert.Equal(t, "pq: connection refused", body["debug"])
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, body["code"])
}

func TestErrorSerialisesAdmissionDetails(t *testing.T) {
	err := appErrors.WithDetails(appErrors.ErrAdmissionFailed, "enrollment_limit", map[string]interface{}{"max_enrollments": 8})
	status, body := performError(t, false, err)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "enrollment_limit", body["validation_strategy"])
	details := body["details"].(map[string]interface{})
	assert.EqualValues(t, 8, details["max_enrollments"])
}
