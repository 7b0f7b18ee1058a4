package tokenstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClientToken 令牌表
type ClientToken struct {
	Name      string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ClientToken) TableName() string { return "client_token" }

// SQL 基于gorm的存储，支持 sqlite/mysql/postgres
type SQL struct {
	db         *gorm.DB
	accessKey  string
	refreshKey string
}

// NewSQL 创建SQL存储并迁移令牌表
func NewSQL(db *gorm.DB, prefix string) (*SQL, error) {
	if err := db.AutoMigrate(&ClientToken{}); err != nil {
		return nil, fmt.Errorf("migrate client_token: %w", err)
	}
	return &SQL{
		db:         db,
		accessKey:  prefix + ":access",
		refreshKey: prefix + ":refresh",
	}, nil
}

func (s *SQL) Save(ctx context.Context, t Tokens) error {
	rows := []ClientToken{
		{Name: s.accessKey, Value: t.Access},
		{Name: s.refreshKey, Value: t.Refresh},
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}

func (s *SQL) Load(ctx context.Context) (Tokens, error) {
	var rows []ClientToken
	err := s.db.WithContext(ctx).
		Where("name IN ?", []string{s.accessKey, s.refreshKey}).
		Find(&rows).Error
	if err != nil {
		return Tokens{}, err
	}

	var t Tokens
	for _, row := range rows {
		switch row.Name {
		case s.accessKey:
			t.Access = row.Value
		case s.refreshKey:
			t.Refresh = row.Value
		}
	}
	return t, nil
}

func (s *SQL) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("name IN ?", []string{s.accessKey, s.refreshKey}).
		Delete(&ClientToken{}).Error
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
