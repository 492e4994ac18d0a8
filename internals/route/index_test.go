package routes

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolku_backend/internals/bootstrap"
	"schoolku_backend/internals/configs"
	"schoolku_backend/internals/databases/dbtest"
	"schoolku_backend/internals/events"
	"schoolku_backend/internals/helpers/apperr"
)

const secret = "route-test-secret"

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := configs.Config{
		JWTSecret:                     secret,
		BusMode:                       configs.BusModeMemory,
		ReceiptStorage:                configs.StorageNone,
		DefaultMinFirstPaymentPercent: 30,
		DefaultCurrency:               "IDR",
	}
	c, err := bootstrap.New(cfg, dbtest.Open(t), &events.Recorder{})
	require.NoError(t, err)

	app := fiber.New(fiber.Config{
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: apperr.ErrorHandler,
	})
	SetupRoutes(app, c)
	return app
}

func token(t *testing.T, school uuid.UUID, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":        uuid.NewString(),
		"school_id": school.String(),
		"role":      role,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, app *fiber.App, method, path, tok string, payload any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if payload != nil {
		b, err := sonic.Marshal(payload)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, sonic.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	app := newApp(t)
	status, out := do(t, app, http.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "OK", out["status"])
	assert.Equal(t, "memory", out["event_bus"])
}

func TestPrivateGroupsRequireToken(t *testing.T) {
	app := newApp(t)
	school := uuid.New()

	status, _ := do(t, app, http.MethodGet, "/api/u/"+school.String()+"/fee-items", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = do(t, app, http.MethodGet, "/api/a/"+school.String()+"/audit-events", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestTokenForAnotherSchoolIsRejected(t *testing.T) {
	app := newApp(t)
	school, other := uuid.New(), uuid.New()

	status, out := do(t, app, http.MethodGet, "/api/a/"+school.String()+"/fee-items", token(t, other, "admin"), nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", out["error_code"])
}

func TestAdminCreatesAndListsFeeItems(t *testing.T) {
	app := newApp(t)
	school := uuid.New()
	tok := token(t, school, "admin")
	base := "/api/a/" + school.String()

	status, out := do(t, app, http.MethodPost, base+"/fee-items", tok, map[string]any{
		"fee_item_name": "SPP",
	})
	require.Equal(t, fiber.StatusCreated, status, out)

	status, out = do(t, app, http.MethodGet, base+"/fee-items", tok, nil)
	require.Equal(t, fiber.StatusOK, status, out)
	items, ok := out["data"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)

	// validasi → 422
	status, _ = do(t, app, http.MethodPost, base+"/fee-items", tok, map[string]any{})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
}

func TestPublicReceiptLookupIsAnonymous(t *testing.T) {
	app := newApp(t)
	school := uuid.New()

	status, out := do(t, app, http.MethodGet, "/api/public/"+school.String()+"/receipts/RCPT-000001", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", out["error_code"])
}

func TestAuditEventsAreAdminOnly(t *testing.T) {
	app := newApp(t)
	school := uuid.New()

	status, _ := do(t, app, http.MethodGet, "/api/a/"+school.String()+"/audit-events", token(t, school, "student"), nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, out := do(t, app, http.MethodGet, "/api/a/"+school.String()+"/audit-events", token(t, school, "admin"), nil)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.NotNil(t, out["pagination"])
}
