package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"billocr/pkg/config"
	"billocr/pkg/database"
	"billocr/pkg/ocr"
	"billocr/pkg/pipeline"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// cannedRecognizer stands in for Tesseract so the flow runs without tessdata.
type cannedRecognizer struct{ text string }

func (c cannedRecognizer) Recognize(context.Context, image.Image, ocr.Config) (string, error) {
	return c.text, nil
}

const cannedBill = "CÔNG TY ĐIỆN LỰC HÀ NỘI\nMã số thuế: 0100100079\nTổng cộng tiền thanh toán: 523.000"

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	t.Setenv("UPLOAD_BASE", t.TempDir())
	t.Setenv("ADMIN_PASSWORD", "admin123")
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.RequireDB())

	db, err := database.Open(database.Options{DSN: cfg.DBDSN, AutoMigrate: true, AdminPassword: cfg.AdminPassword}, zerolog.Nop())
	require.NoError(t, err)

	pipe := pipeline.NewWithRecognizer(cannedRecognizer{text: cannedBill}, pipelineOptions(cfg), zerolog.Nop())
	a, err := newApp(cfg, db, pipe)
	require.NoError(t, err)
	r := gin.New()
	a.setupRoutes(r)
	return r
}

func login(t *testing.T, r http.Handler, username, password string) (string, string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp := performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(body), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	token, _ := out["token"].(string)
	refresh, _ := out["refresh_token"].(string)
	require.NotEmpty(t, token)
	return token, refresh
}

func sharpPNG(t *testing.T) []byte {
	img := imaging.New(40, 40, color.White)
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			if (x/2+y/2)%2 == 0 {
				img.Set(x, y, color.Black)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)
	username := fmt.Sprintf("user%d", time.Now().UnixNano())

	regBody, _ := json.Marshal(map[string]string{"username": username, "password": "pass123"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	require.Equal(t, http.StatusConflict, resp.Code)

	token, refresh := login(t, r, username, "pass123")

	// upload a bill image
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	_ = mw.WriteField("bill_type", "electric")
	w, _ := mw.CreateFormFile("file", "hoa_don.png")
	_, _ = w.Write(sharpPNG(t))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/upload", buf, token, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var up struct {
		Success bool           `json:"success"`
		BillID  uint           `json:"bill_id"`
		ExcelID string         `json:"excel_id"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &up))
	require.True(t, up.Success)
	require.Equal(t, "0100100079", up.Data["company_tax_code"])
	require.Equal(t, float64(1), up.Data["preprocessing_level"])

	resp = performRequest(r, http.MethodGet, "/bills", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"total_amount":"523.000"`)

	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/bill/%d", up.BillID), nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = performRequest(r, http.MethodGet, "/excel/"+up.ExcelID, nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Header().Get("Content-Disposition"), "hoa_don_result.xlsx")

	resp = performRequest(r, http.MethodPost, fmt.Sprintf("/bill/%d/reprocess", up.BillID), nil, token, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = performRequest(r, http.MethodGet, "/stats", nil, "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"electric_bills":`)
	require.Contains(t, resp.Body.String(), `"total_bills":`)

	// regular users cannot delete
	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/bill/%d", up.BillID), nil, token, "")
	require.Equal(t, http.StatusForbidden, resp.Code)

	adminToken, _ := login(t, r, "admin", "admin123")
	resp = performRequest(r, http.MethodDelete, fmt.Sprintf("/bill/%d", up.BillID), nil, adminToken, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/bill/%d", up.BillID), nil, "", "")
	require.Equal(t, http.StatusNotFound, resp.Code)

	// refresh rotates the token once
	body, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(body), "", "application/json")
	require.Equal(t, http.StatusOK, resp.Code)
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(body), "", "application/json")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	// unauthenticated upload
	resp = performRequest(r, http.MethodPost, "/upload", nil, "", "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestUploadRejectsNonImage(t *testing.T) {
	r := setupTestServer(t)
	token, _ := login(t, r, "admin", "admin123")

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	w, _ := mw.CreateFormFile("file", "notes.txt")
	_, _ = w.Write([]byte("SOME CONTENT"))
	_ = mw.Close()
	resp := performRequest(r, http.MethodPost, "/upload", buf, token, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
