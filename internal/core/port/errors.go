// Package port file: internal/core/port/errors.go
package port

import "errors"

// 记录查询引擎的错误分类。各层用 fmt.Errorf("...: %w") 包装，传输层用 errors.Is 判断。
var (
	ErrValidation         = errors.New("请求参数校验失败")
	ErrNotFound           = errors.New("数据模型不存在或已删除")
	ErrUnmappedAttribute  = errors.New("属性没有可用的存储映射")
	ErrBackendUnavailable = errors.New("外部数据源不可用")
	ErrInternalStore      = errors.New("内部存储执行失败")
	ErrReadOnlySource     = errors.New("外部数据源只读，不允许写入")
)
