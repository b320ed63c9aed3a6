package database

import (
	"time"

	"gorm.io/gorm"
)

const startKey = "crowdflow:query_start"

// QueryRecorder 查询耗时上报，由 metrics.Collector 实现
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// QueryMetrics GORM 插件：按操作类型记录每条语句耗时
type QueryMetrics struct {
	Database string
	Recorder QueryRecorder
}

// Name implements gorm.Plugin.
func (p *QueryMetrics) Name() string { return "crowdflow:query_metrics" }

// Initialize implements gorm.Plugin.
func (p *QueryMetrics) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before(p.Name()+":before_"+h.op, p.start); err != nil {
			return err
		}
		if err := h.after(p.Name()+":after_"+h.op, p.finish(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *QueryMetrics) start(db *gorm.DB) {
	db.InstanceSet(startKey, time.Now())
}

func (p *QueryMetrics) finish(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startKey)
		if !ok {
			return
		}
		if started, ok := v.(time.Time); ok {
			p.Recorder.RecordDBQuery(p.Database, op, time.Since(started))
		}
	}
}
