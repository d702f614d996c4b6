package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/tests"
)

func Test_appHTTPErrorHandler_debug(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Debug = true
	_, translator := core.NewValidator()
	handler := newAppHTTPErrorHandler(testutil.NewLogger(conf), translator, func() {})

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "external error keeps the generic text",
			err:      errors.Wrap(core.NewExternalError("storage", errors.New("bucket unavailable")), "adding attachment"),
			wantCode: http.StatusBadGateway,
			wantBody: `{"error":"` + externalErrorText + `"}`,
		},
		{
			name:     "server error shows the cause",
			err:      errors.New("db exploded"),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"db exploded"}`,
		},
		{
			name:     "conflict",
			err:      core.NewConflict("already graded"),
			wantCode: http.StatusConflict,
			wantBody: `{"error":"already graded"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Debug = conf.Debug
			rec := httptest.NewRecorder()
			ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			handler(tt.err, ctx)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
