package model

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"freenow/internal/timetable"
)

// StudentRecord 学生课表记录：对应 student_records
// 同一 scope（群聊）内显示名不区分大小写唯一
type StudentRecord struct {
	ID        string                                 `gorm:"type:varchar(36);primaryKey"                                json:"id"`
	Scope     string                                 `gorm:"type:varchar(64);not null;uniqueIndex:uq_student_scope_name" json:"scope"`
	Name      string                                 `gorm:"type:varchar(32);not null"                                  json:"name"`
	NameKey   string                                 `gorm:"type:varchar(32);not null;uniqueIndex:uq_student_scope_name" json:"-"`
	Color     string                                 `gorm:"type:varchar(16);not null"                                  json:"color"`
	ShareLink string                                 `gorm:"type:text;not null"                                         json:"share_link"`
	Timetable datatypes.JSONType[timetable.Schedule] `gorm:"not null"                                                   json:"timetable"`
	VersionedModel
}

// TableName 指定表名
func (StudentRecord) TableName() string { return "student_records" }

// NameKeyOf 唯一键使用的规范化名字
func NameKeyOf(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// BeforeCreate 补全 ID 与 NameKey
func (r *StudentRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.NameKey = NameKeyOf(r.Name)
	return nil
}

// Schedule 取出课表
func (r *StudentRecord) Schedule() timetable.Schedule {
	return r.Timetable.Data()
}

// SetSchedule 整体替换课表
func (r *StudentRecord) SetSchedule(s timetable.Schedule) {
	r.Timetable = datatypes.NewJSONType(s)
}
