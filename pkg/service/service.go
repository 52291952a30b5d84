// Package service stores processed bills and their artifacts.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"billocr/models"
	"billocr/pkg/bill"
	"billocr/pkg/ocr"
	"billocr/pkg/pipeline"
	"billocr/pkg/report"
	"billocr/pkg/storage"
)

var (
	ErrNotFound        = errors.New("bill not found")
	ErrUnsupportedFile = errors.New("only image files are supported")
	ErrEmptyFile       = errors.New("no file selected")
)

// Extensions accepted by Ingest.
var Extensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".tif"}

const (
	DefaultListLimit = 100
	maxListLimit     = 1000
)

// Pipeline turns an image into a bill record.
type Pipeline interface {
	Run(ctx context.Context, data []byte, t bill.Type) (pipeline.Outcome, error)
	Supports(t bill.Type) bool
}

// Upload is one image submitted for processing.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
	Type        bill.Type
	UserID      *uint
}

// Stats summarizes stored bills.
type Stats struct {
	Total         int64            `json:"total"`
	ByType        map[string]int64 `json:"by_type"`
	AvgConfidence float64          `json:"avg_confidence"`
}

// ListOptions filters List.
type ListOptions struct {
	Limit int
	Type  bill.Type // empty lists every type
}

// BillService runs the pipeline and keeps images, reports and rows consistent.
type BillService struct {
	db      *gorm.DB
	store   *storage.Store
	pipe    Pipeline
	timeout time.Duration
	log     zerolog.Logger
}

// New builds a BillService. timeout bounds each pipeline run; zero disables it.
func New(db *gorm.DB, store *storage.Store, pipe Pipeline, timeout time.Duration, log zerolog.Logger) *BillService {
	return &BillService{db: db, store: store, pipe: pipe, timeout: timeout, log: log}
}

// IsInputError reports errors caused by the submitted file or bill type.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnsupportedFile) ||
		errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, bill.ErrUnsupportedBillType) ||
		errors.Is(err, ocr.ErrDecodeImage) ||
		errors.Is(err, ocr.ErrEmptyImage)
}

// SupportedFile reports whether name has an accepted image extension.
func SupportedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *BillService) validate(u Upload) error {
	if strings.TrimSpace(u.FileName) == "" || len(u.Data) == 0 {
		return ErrEmptyFile
	}
	if !SupportedFile(u.FileName) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(u.FileName))
	}
	if !s.pipe.Supports(u.Type) {
		return fmt.Errorf("%w: %q", bill.ErrUnsupportedBillType, u.Type)
	}
	return nil
}

func (s *BillService) run(ctx context.Context, data []byte, t bill.Type) (pipeline.Outcome, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.pipe.Run(ctx, data, t)
}

// Ingest processes u, stores the image and its report, and records the result.
func (s *BillService) Ingest(ctx context.Context, u Upload) (models.Bill, error) {
	if err := s.validate(u); err != nil {
		return models.Bill{}, err
	}
	out, err := s.run(ctx, u.Data, u.Type)
	if err != nil {
		return models.Bill{}, err
	}

	b := models.Bill{
		UserID:       u.UserID,
		FileName:     filepath.Base(u.FileName),
		ContentType:  u.ContentType,
		QualityLabel: out.QualityLabel,
	}
	if b.ContentType == "" {
		b.ContentType = storage.ContentType(u.FileName)
	}
	b.SetRecord(out.Record)

	if b.FileKey, err = s.store.Put(u.FileName, u.Data); err != nil {
		return models.Bill{}, fmt.Errorf("store image: %w", err)
	}
	if b.ReportKey, err = s.putReport(out.Record); err != nil {
		s.discard(b.FileKey)
		return models.Bill{}, err
	}
	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		s.discard(b.FileKey, b.ReportKey)
		return models.Bill{}, fmt.Errorf("save bill: %w", err)
	}

	s.log.Info().
		Uint("bill_id", b.ID).
		Str("file", b.FileName).
		Str("bill_type", b.BillType).
		Float64("confidence", b.ConfidenceScore).
		Msg("bill stored")
	return b, nil
}

func (s *BillService) putReport(rec bill.Record) (string, error) {
	data, err := report.RecordWorkbook(rec)
	if err != nil {
		return "", fmt.Errorf("build report: %w", err)
	}
	key, err := s.store.Put("report.xlsx", data)
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return key, nil
}

func (s *BillService) discard(keys ...string) {
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := s.store.Delete(k); err != nil {
			s.log.Warn().Err(err).Str("key", k).Msg("cleanup failed")
		}
	}
}

// List returns bills newest first.
func (s *BillService) List(ctx context.Context, opts ListOptions) ([]models.Bill, error) {
	q := s.db.WithContext(ctx).Model(&models.Bill{}).
		Omit("raw_text", "corrected_text").
		Order("created_at desc, id desc").
		Limit(clampLimit(opts.Limit))
	if opts.Type != "" {
		q = q.Where("bill_type = ?", string(opts.Type))
	}
	var out []models.Bill
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return out, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > maxListLimit:
		return maxListLimit
	default:
		return n
	}
}

// Get loads one bill.
func (s *BillService) Get(ctx context.Context, id uint) (models.Bill, error) {
	var b models.Bill
	err := s.db.WithContext(ctx).First(&b, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Bill{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return models.Bill{}, err
	}
	return b, nil
}

// Delete removes the row and both stored files.
func (s *BillService) Delete(ctx context.Context, id uint) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Bill{}, b.ID).Error; err != nil {
		return fmt.Errorf("delete bill %d: %w", id, err)
	}
	s.discard(b.FileKey, b.ReportKey)
	s.log.Info().Uint("bill_id", id).Msg("bill deleted")
	return nil
}

// Reprocess reruns the pipeline on the stored image and replaces the record and report.
func (s *BillService) Reprocess(ctx context.Context, id uint) (models.Bill, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return models.Bill{}, err
	}
	data, err := s.store.ReadAll(b.FileKey)
	if err != nil {
		return models.Bill{}, fmt.Errorf("read image for bill %d: %w", id, err)
	}
	out, err := s.run(ctx, data, bill.Type(b.BillType))
	if err != nil {
		return models.Bill{}, err
	}

	oldReport := b.ReportKey
	b.SetRecord(out.Record)
	b.QualityLabel = out.QualityLabel
	if b.ReportKey, err = s.putReport(out.Record); err != nil {
		return models.Bill{}, err
	}
	if err := s.db.WithContext(ctx).Save(&b).Error; err != nil {
		s.discard(b.ReportKey)
		return models.Bill{}, fmt.Errorf("update bill %d: %w", id, err)
	}
	s.discard(oldReport)
	s.log.Info().Uint("bill_id", id).Float64("confidence", b.ConfidenceScore).Msg("bill reprocessed")
	return b, nil
}

// LowConfidence lists ids of bills scoring below threshold, oldest first.
func (s *BillService) LowConfidence(ctx context.Context, threshold float64) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Bill{}).
		Where("confidence_score < ?", threshold).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// Stats counts bills per type and averages their confidence.
func (s *BillService) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		BillType string
		N        int64
		Avg      float64
	}
	err := s.db.WithContext(ctx).Model(&models.Bill{}).
		Select("bill_type, count(*) AS n, coalesce(avg(confidence_score), 0) AS avg").
		Group("bill_type").
		Scan(&rows).Error
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	st := Stats{ByType: make(map[string]int64)}
	var sum float64
	for _, r := range rows {
		st.ByType[r.BillType] = r.N
		st.Total += r.N
		sum += r.Avg * float64(r.N)
	}
	if st.Total > 0 {
		st.AvgConfidence = round2(sum / float64(st.Total))
	}
	return st, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Export renders every stored bill, optionally of one type, into a workbook.
func (s *BillService) Export(ctx context.Context, t bill.Type) ([]byte, int, error) {
	q := s.db.WithContext(ctx).Model(&models.Bill{}).Order("id")
	if t != "" {
		q = q.Where("bill_type = ?", string(t))
	}
	var bills []models.Bill
	if err := q.Find(&bills).Error; err != nil {
		return nil, 0, fmt.Errorf("export query: %w", err)
	}
	entries := make([]report.Entry, len(bills))
	for i, b := range bills {
		entries[i] = report.Entry{ID: b.ID, FileName: b.FileName, CreatedAt: b.CreatedAt, Record: b.Record()}
	}
	data, err := report.ExportWorkbook(entries)
	return data, len(bills), err
}

// OpenFile returns a stored image by key.
func (s *BillService) OpenFile(key string) (*storage.Object, error) {
	return s.store.Open(key)
}

// OpenReport returns a stored report by key together with its download name.
func (s *BillService) OpenReport(ctx context.Context, key string) (*storage.Object, string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, "", err
	}
	var b models.Bill
	err := s.db.WithContext(ctx).Select("file_name").Where("report_key = ?", key).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("%w: report %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, "", err
	}
	obj, err := s.store.Open(key)
	if err != nil {
		return nil, "", err
	}
	return obj, report.Name(b.FileName), nil
}
