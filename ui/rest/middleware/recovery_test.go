package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgError "github.com/AzielCF/az-bulk/pkg/error"
	"github.com/AzielCF/az-bulk/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecovery(t *testing.T) {
	cases := []struct {
		name   string
		panic  any
		status int
		code   string
	}{
		{"not found", pkgError.NotFoundError("job not found"), http.StatusNotFound, "NOT_FOUND_ERROR"},
		{"wrapped conflict", fmt.Errorf("pause: %w", pkgError.ConflictError("job is running")), http.StatusConflict, "CONFLICT_ERROR"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{"string", "oops", http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(Recovery())
			app.Get("/", func(c *fiber.Ctx) error { panic(tc.panic) })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			var body utils.ResponseData
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.status, body.Status)
			assert.Equal(t, tc.code, body.Code)
		})
	}
}
