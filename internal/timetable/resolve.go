package timetable

import (
	"context"
	"errors"
	"fmt"
)

// ErrResolutionFailure 模块查询失败或模块不存在：本地恢复（跳过该模块），不作为硬错误向上传播
var ErrResolutionFailure = errors.New("课程模块解析失败")

// ResolutionError 携带失败模块的解析错误，errors.Is(err, ErrResolutionFailure) 为真
type ResolutionError struct {
	Module ModuleCode
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrResolutionFailure, e.Module)
	}
	return fmt.Sprintf("%s: %s: %v", ErrResolutionFailure, e.Module, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolutionFailure }

// NewResolutionError 包装底层错误；已是 ResolutionError 时原样返回
func NewResolutionError(module ModuleCode, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re
	}
	return &ResolutionError{Module: module, Err: err}
}

// Resolver 课程目录查询：返回模块在目录中的全部时段（所有类型、所有班级），
// 尚未按某个学生的选课过滤
type Resolver interface {
	Resolve(ctx context.Context, module ModuleCode) ([]ConcreteSession, error)
}

// ResolverFunc 函数适配器，便于测试注入固定数据
type ResolverFunc func(ctx context.Context, module ModuleCode) ([]ConcreteSession, error)

func (f ResolverFunc) Resolve(ctx context.Context, module ModuleCode) ([]ConcreteSession, error) {
	return f(ctx, module)
}

// FilterEnrolled 从模块的目录切片中筛出学生选定的班级
// 匹配规则：(Kind, ClassNo) 元组完全相等，不做部分匹配
func FilterEnrolled(refs []SessionReference, catalog []ConcreteSession) []ConcreteSession {
	if len(refs) == 0 || len(catalog) == 0 {
		return nil
	}
	want := make(map[SessionReference]bool, len(refs))
	for _, r := range refs {
		want[r] = true
	}
	var out []ConcreteSession
	for _, s := range catalog {
		if want[s.Reference()] {
			out = append(out, s)
		}
	}
	return out
}

// ResolveSchedule 将整张课表解析为扁平时段列表
//
// 单个模块失败只记录到 failures 并跳过，不中断其余模块；
// 目录中的非法时段同样跳过并记录。
func ResolveSchedule(ctx context.Context, r Resolver, s Schedule) (ResolvedSchedule, []error) {
	var (
		resolved ResolvedSchedule
		failures []error
	)
	for _, module := range s.Modules() {
		refs := s[module]
		if len(refs) == 0 {
			continue
		}
		catalog, err := r.Resolve(ctx, module)
		if err != nil {
			failures = append(failures, NewResolutionError(module, err))
			continue
		}
		for _, session := range FilterEnrolled(refs, catalog) {
			if err := session.Validate(); err != nil {
				failures = append(failures, err)
				continue
			}
			resolved = append(resolved, session)
		}
	}
	return resolved, failures
}

// FailedModules 提取 failures 中解析失败的模块
func FailedModules(failures []error) []ModuleCode {
	var mods []ModuleCode
	for _, err := range failures {
		var re *ResolutionError
		if errors.As(err, &re) {
			mods = append(mods, re.Module)
		}
	}
	return mods
}
