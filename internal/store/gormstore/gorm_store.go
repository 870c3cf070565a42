// Package gormstore implements execution and event persistence using
// Gorm + SQLite.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tickflow/internal/store"
	storemodel "tickflow/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type executionModel = storemodel.ExecutionModel
type eventLogModel = storemodel.EventLogModel

// GormStore 同时充当两个仓储的实现，连接是共享的。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&executionModel{}, &eventLogModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Executions() store.ExecutionRepository { return s }
func (s *GormStore) Events() store.EventRepository         { return s }

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ store.Store = (*GormStore)(nil)

// --------------------- Execution Implementation -------------------------

// Create 依赖 execution_key 上的唯一索引实现幂等插入：冲突时
// DoNothing，由 RowsAffected 区分“新建”与“重复”。
func (s *GormStore) Create(ctx context.Context, rec *executionModel) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("gorm store 未初始化")
	}
	if rec == nil || strings.TrimSpace(rec.ExecutionKey) == "" {
		return false, fmt.Errorf("execution_key 必填")
	}
	now := time.Now().Unix()
	if rec.CreatedAtUnix == 0 {
		rec.CreatedAtUnix = now
	}
	rec.UpdatedAtUnix = now
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "execution_key"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) FindByKey(ctx context.Context, executionKey string) (*executionModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var m executionModel
	err := s.db.WithContext(ctx).Where("execution_key = ?", executionKey).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, executionKey string, status storemodel.ExecutionStatus, patch store.StatusPatch) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().Unix(),
	}
	if patch.EntryOrderID != "" {
		updates["entry_order_id"] = patch.EntryOrderID
	}
	if patch.StopOrderID != "" {
		updates["stop_order_id"] = patch.StopOrderID
	}
	if patch.TakeProfitOrderID != "" {
		updates["take_profit_order_id"] = patch.TakeProfitOrderID
	}
	if patch.Error != "" {
		updates["error"] = patch.Error
	}
	res := s.db.WithContext(ctx).
		Model(&executionModel{}).
		Where("execution_key = ?", executionKey).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("execution %s 不存在", executionKey)
	}
	return nil
}

func (s *GormStore) ListNonTerminal(ctx context.Context) ([]executionModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	var models []executionModel
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", []storemodel.ExecutionStatus{storemodel.StatusPositionClosed, storemodel.StatusFailed}).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}

func (s *GormStore) ListRecent(ctx context.Context, limit int) ([]executionModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 {
		limit = 50
	}
	var models []executionModel
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}

// --------------------- EventLog Implementation -------------------------

func (s *GormStore) Append(ctx context.Context, ev *eventLogModel) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if ev == nil {
		return nil
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	return s.db.WithContext(ctx).Create(ev).Error
}

func (s *GormStore) ListByKey(ctx context.Context, executionKey string, limit int) ([]eventLogModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 {
		limit = 100
	}
	var models []eventLogModel
	err := s.db.WithContext(ctx).
		Where("execution_key = ?", executionKey).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
