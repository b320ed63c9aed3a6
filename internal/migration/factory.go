package migration

import (
	"fmt"

	"github.com/BaSui01/crowdflow/config"
)

// NewMigratorFromConfig 从应用配置创建迁移器
func NewMigratorFromConfig(cfg *config.Config) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromDatabaseConfig(cfg.Database)
}

// NewMigratorFromDatabaseConfig 从数据库配置创建迁移器；sqlite 的 Name 为文件路径
func NewMigratorFromDatabaseConfig(db config.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(db.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	var url string
	switch dbType {
	case DatabaseTypeSQLite:
		url = BuildDatabaseURL(dbType, "", 0, db.Name, "", "", "")
	default:
		url = BuildDatabaseURL(dbType, db.Host, db.Port, db.Name, db.User, db.Password, db.SSLMode)
	}
	return NewMigrator(&Config{DatabaseType: dbType, DatabaseURL: url})
}

// NewMigratorFromURL 用显式类型与连接串创建迁移器
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{DatabaseType: dt, DatabaseURL: dbURL})
}
