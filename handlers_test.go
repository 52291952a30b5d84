package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"billocr/models"
	"billocr/pkg/bill"
	"billocr/pkg/ocr"
	"billocr/pkg/service"
	"billocr/pkg/storage"
)

var testSecret = []byte("test-secret")

func authOnlyRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	a := &app{jwtSecret: testSecret, maxUpload: 1 << 20, log: zerolog.Nop()}
	r := gin.New()
	g := r.Group("")
	g.Use(a.jwtAuthMiddleware())
	g.GET("/me", meHandler)
	g.DELETE("/bill/:id", requireRole(models.RoleAdministrator), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func tokenFor(t *testing.T, id uint, role string) string {
	t.Helper()
	tok, err := issueAccessToken(testSecret, models.User{ID: id, Username: "user1", Role: models.Role{Name: role}}, time.Now())
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	r := authOnlyRouter()

	resp := performRequest(r, http.MethodGet, "/me", nil, "", "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodGet, "/me", nil, "garbage", "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(r, http.MethodGet, "/me", nil, tokenFor(t, 7, models.RoleUser), "")
	require.Equal(t, http.StatusOK, resp.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &me))
	require.Equal(t, "user1", me["username"])
	require.Equal(t, float64(7), me["id"])
	require.Equal(t, models.RoleUser, me["role"])
}

func TestAuthRejectsForeignAndExpiredTokens(t *testing.T) {
	r := authOnlyRouter()

	other, err := issueAccessToken([]byte("other"), models.User{ID: 1, Username: "x"}, time.Now())
	require.NoError(t, err)
	resp := performRequest(r, http.MethodGet, "/me", nil, other, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	expired, err := issueAccessToken(testSecret, models.User{ID: 1, Username: "x"}, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	resp = performRequest(r, http.MethodGet, "/me", nil, expired, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"username": "x"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	resp = performRequest(r, http.MethodGet, "/me", nil, raw, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestDeleteRequiresAdministrator(t *testing.T) {
	r := authOnlyRouter()

	resp := performRequest(r, http.MethodDelete, "/bill/1", nil, tokenFor(t, 2, models.RoleUser), "")
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = performRequest(r, http.MethodDelete, "/bill/1", nil, tokenFor(t, 1, models.RoleAdministrator), "")
	require.Equal(t, http.StatusNoContent, resp.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", ocr.ErrDecodeImage), http.StatusBadRequest},
		{fmt.Errorf("x: %w", bill.ErrUnsupportedBillType), http.StatusBadRequest},
		{service.ErrUnsupportedFile, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{fmt.Errorf("x: %w", service.ErrNotFound), http.StatusNotFound},
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestBillSummaryDefaults(t *testing.T) {
	b := models.Bill{ID: 3, FileName: "a.jpg", BillType: "water", ConfidenceScore: 0.456,
		CreatedAt: time.Date(2024, 4, 5, 8, 9, 10, 0, time.UTC)}
	b.Fields = models.FieldValues{"total_amount": "120.000"}

	h := billSummary(b)
	require.Equal(t, 0.46, h["confidence"])
	require.Equal(t, "2024-04-05 08:09:10", h["upload_date"])
	require.Equal(t, "120.000", h["total_amount"])
	require.Equal(t, models.NotAvailable, h["customer_name"])
	require.Nil(t, h["excel_id"])
}

func TestRequestLoggerTagsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(requestLogger(zerolog.New(&buf)))
	r.GET("/healthz", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("handler")
		c.Status(http.StatusOK)
	})

	resp := performRequest(r, http.MethodGet, "/healthz", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	id := resp.Header().Get(requestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(buf.String(), `"request_id":"`+id+`"`), buf.String())

	tests := []struct {
		incoming string
		kept     bool
	}{
		{"3f1c2a9e-7d4b-4c1e-9a8f-2b6d5e4c3a21", true},
		{"not-a-uuid\ninjected", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(requestIDHeader, tt.incoming)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		got := rec.Header().Get(requestIDHeader)
		require.Equal(t, tt.kept, got == tt.incoming, got)
		_, err := uuid.Parse(got)
		require.NoError(t, err)
	}
}

func TestStatsBody(t *testing.T) {
	h := statsBody(service.Stats{Total: 5, ByType: map[string]int64{"electric": 3, "water": 2}, AvgConfidence: 0.61})
	require.Equal(t, int64(5), h["total_bills"])
	require.Equal(t, int64(3), h["electric_bills"])
	require.Equal(t, int64(2), h["water_bills"])
	require.Equal(t, 0.61, h["avg_confidence"])

	empty := statsBody(service.Stats{ByType: map[string]int64{}})
	require.Equal(t, int64(0), empty["water_bills"])
}
