package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"billocr/models"
	"billocr/pkg/bill"
	"billocr/pkg/database"
	"billocr/pkg/logger"
	"billocr/pkg/service"
	"billocr/pkg/storage"
)

const uploadDateLayout = "2006-01-02 15:04:05"

type app struct {
	db        *gorm.DB
	bills     *service.BillService
	jwtSecret []byte
	maxUpload int64
	log       zerolog.Logger
}

func (a *app) setupRoutes(r *gin.Engine) {
	r.GET("/healthz", a.healthHandler)
	r.POST("/register", a.registerHandler)
	r.POST("/login", a.loginHandler)
	r.POST("/refresh", a.refreshHandler)
	r.POST("/revoke_refresh", a.revokeRefreshHandler)
	r.GET("/bills", a.listBillsHandler)
	r.GET("/bill/:id", a.getBillHandler)
	r.GET("/file/:key", a.fileHandler)
	r.GET("/excel/:key", a.excelHandler)
	r.GET("/stats", a.statsHandler)

	authGroup := r.Group("")
	authGroup.Use(a.jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/upload", a.uploadHandler)
	authGroup.POST("/bill/:id/reprocess", a.reprocessHandler)
	authGroup.DELETE("/bill/:id", requireRole(models.RoleAdministrator), a.deleteBillHandler)
}

const requestIDHeader = "X-Request-ID"

// requestLogger tags each request with an id and writes one line per request through zerolog.
// A well-formed incoming X-Request-ID is kept, anything else is replaced.
func requestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		log := logger.WithRequestID(base, id)
		c.Request = c.Request.WithContext(log.WithContext(c.Request.Context()))

		c.Next()
		status := c.Writer.Status()
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func (a *app) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		claims, err := parseAccessToken(a.jwtSecret, authHeader[7:])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// errorStatus maps service errors onto HTTP codes.
func errorStatus(err error) int {
	switch {
	case service.IsInputError(err), errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (a *app) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		a.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (a *app) healthHandler(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *app) registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := RegisterUser(a.db, req.Username, req.Password)
	switch {
	case errors.Is(err, database.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrWeakPassword), errors.Is(err, database.ErrEmptyUsername):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		a.fail(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"message": "user registered successfully", "id": user.ID})
	}
}

func (a *app) loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(a.db, req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	a.respondTokens(c, user, "login successful")
}

func (a *app) respondTokens(c *gin.Context, user models.User, msg string) {
	token, err := issueAccessToken(a.jwtSecret, user, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refresh, err := createRefreshToken(a.db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "token": token, "refresh_token": refresh})
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func (a *app) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshToken(a.db, req.RefreshToken)
	if err != nil || !rt.Usable(time.Now()) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := a.db.Preload("Role").First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if err := a.db.Model(rt).Update("revoked", true).Error; err != nil {
		a.fail(c, err)
		return
	}
	a.respondTokens(c, user, "token refreshed")
}

func (a *app) revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshToken(a.db, req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	if err := a.db.Model(rt).Update("revoked", true).Error; err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

func meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"id":       c.GetUint("user_id"),
		"username": c.GetString("username"),
		"role":     c.GetString("role"),
	})
}

// uploadHandler accepts a multipart bill image and runs it through the pipeline.
func (a *app) uploadHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrEmptyFile.Error()})
		return
	}
	if file.Size > a.maxUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file too large (max %dMB)", a.maxUpload>>20)})
		return
	}
	billType, err := bill.ParseType(c.PostForm("bill_type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := file.Open()
	if err != nil {
		a.fail(c, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, a.maxUpload+1))
	_ = f.Close()
	if err != nil {
		a.fail(c, err)
		return
	}

	uid := c.GetUint("user_id")
	up := service.Upload{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
		Type:        billType,
	}
	if uid != 0 {
		up.UserID = &uid
	}
	b, err := a.bills.Ingest(c.Request.Context(), up)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Bill processed successfully",
		"bill_id":    b.ID,
		"confidence": round2(b.ConfidenceScore),
		"data":       b.Record(),
		"excel_id":   b.ReportKey,
	})
}

func billSummary(b models.Bill) gin.H {
	return gin.H{
		"id":             b.ID,
		"filename":       b.FileName,
		"bill_type":      b.BillType,
		"confidence":     round2(b.ConfidenceScore),
		"upload_date":    b.CreatedAt.Format(uploadDateLayout),
		"customer_name":  b.Field(bill.CustomerName),
		"total_amount":   b.Field(bill.TotalAmount),
		"invoice_number": b.Field(bill.InvoiceNumber),
		"excel_id":       nullable(b.ReportKey),
	}
}

func billDetail(b models.Bill) gin.H {
	return gin.H{
		"id":                  b.ID,
		"filename":            b.FileName,
		"file_id":             b.FileKey,
		"excel_file_id":       nullable(b.ReportKey),
		"upload_date":         b.CreatedAt.Format(uploadDateLayout),
		"bill_type":           b.BillType,
		"confidence_score":    b.ConfidenceScore,
		"preprocessing_level": b.PreprocessingLevel,
		"ocr_config_used":     b.OCRConfigUsed,
		"quality_label":       b.QualityLabel,
		"data":                b.Record(),
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (a *app) listBillsHandler(c *gin.Context) {
	opts := service.ListOptions{}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		opts.Limit = n
	}
	if v := strings.TrimSpace(c.Query("type")); v != "" {
		t, err := bill.ParseType(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.Type = t
	}
	bills, err := a.bills.List(c.Request.Context(), opts)
	if err != nil {
		a.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(bills))
	for _, b := range bills {
		out = append(out, billSummary(b))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bills": out})
}

func (a *app) getBillHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	b, err := a.bills.Get(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bill": billDetail(b)})
}

func (a *app) deleteBillHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := a.bills.Delete(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Bill deleted"})
}

func (a *app) reprocessHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	b, err := a.bills.Reprocess(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bill": billDetail(b)})
}

func (a *app) fileHandler(c *gin.Context) {
	obj, err := a.bills.OpenFile(c.Param("key"))
	if err != nil {
		a.fail(c, err)
		return
	}
	defer obj.Close()
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj, nil)
}

func (a *app) excelHandler(c *gin.Context) {
	obj, name, err := a.bills.OpenReport(c.Request.Context(), c.Param("key"))
	if err != nil {
		a.fail(c, err)
		return
	}
	defer obj.Close()
	c.DataFromReader(http.StatusOK, obj.Size, storage.ContentType(name), obj, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

func (a *app) statsHandler(c *gin.Context) {
	st, err := a.bills.Stats(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": statsBody(st)})
}

// statsBody keeps the per-type counters of the upload UI next to the full breakdown.
func statsBody(st service.Stats) gin.H {
	return gin.H{
		"total_bills":    st.Total,
		"electric_bills": st.ByType[string(bill.Electric)],
		"water_bills":    st.ByType[string(bill.Water)],
		"avg_confidence": st.AvgConfidence,
		"by_type":        st.ByType,
	}
}
