package model

import (
	"context"
	"time"

	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/pkg/db"
	"github.com/thep200/codeql-fetcher/pkg/log"
	"gorm.io/gorm/clause"
)

// Database là một dòng trong catalog các database đã cài đặt.
// Catalog được consumer ghi từ các install event; các stage sau của pipeline
// (chạy query, phân loại) đọc catalog để biết database nằm ở đâu.
type Database struct {
	Model
	RepoName    string    `json:"repo_name" gorm:"column:repo_name;type:varchar(255);not null;uniqueIndex:idx_repo_lang"`
	Language    string    `json:"language" gorm:"column:language;type:varchar(32);not null;uniqueIndex:idx_repo_lang"`
	Stars       int       `json:"stars" gorm:"column:stars;default:0"`
	Forks       int       `json:"forks" gorm:"column:forks;default:0"`
	SizeBytes   int64     `json:"size_bytes" gorm:"column:size_bytes;default:0"`
	Path        string    `json:"path" gorm:"column:path;type:varchar(1024);not null"`
	Source      string    `json:"source" gorm:"column:source;type:varchar(16);not null"`
	InstalledAt time.Time `json:"installed_at" gorm:"column:installed_at"`
}

func NewDatabase(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Database, error) {
	database := &Database{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  mysql,
		},
	}
	return database, nil
}

func (d *Database) TableName() string {
	return "databases"
}

// Record upsert một install event vào catalog theo khóa (repo_name, language)
func (d *Database) Record(msg InstallMessage) error {
	ctx := context.Background()

	row := &Database{
		RepoName:    TruncateString(msg.RepoName, 250),
		Language:    TruncateString(msg.Language, 30),
		Stars:       msg.Stars,
		Forks:       msg.Forks,
		SizeBytes:   msg.SizeBytes,
		Path:        TruncateString(msg.Path, 1020),
		Source:      TruncateString(msg.Source, 15),
		InstalledAt: msg.InstalledAt,
	}

	db, err := d.Mysql.Db()
	if err != nil {
		d.Logger.Error(ctx, "Failed to get database connection: %v", err)
		return err
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repo_name"}, {Name: "language"}},
		DoUpdates: clause.AssignmentColumns([]string{"stars", "forks", "size_bytes", "path", "source", "installed_at", "updated_at"}),
	}).Create(row).Error; err != nil {
		d.Logger.Error(ctx, "Failed to record installed database: %v", err)
		return err
	}

	d.Logger.Info(ctx, "Recorded installed database %s (%s) at %s", msg.RepoName, msg.Language, msg.Path)
	return nil
}
