package database

import (
	"time"

	"gorm.io/gorm"
)

const queryStartKey = "careerflow:query_start"

// QueryObserver 在每条 gorm 语句结束后被调用. operation 取 create/query/update/delete/row/raw.
type QueryObserver func(operation string, duration time.Duration)

// ObserveQueries 为 db 注册耗时回调.
func ObserveQueries(db *gorm.DB, observe QueryObserver) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(queryStartKey, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			if start, ok := v.(time.Time); ok {
				observe(op, time.Since(start))
			}
		}
	}

	cb := db.Callback()
	steps := []struct {
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
	for _, s := range steps {
		if err := s.before("careerflow:before_"+s.op, before); err != nil {
			return err
		}
		if err := s.after("careerflow:after_"+s.op, after(s.op)); err != nil {
			return err
		}
	}
	return nil
}
