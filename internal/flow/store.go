package flow

import "context"

// Store 负责流程运行状态的持久化。
type Store interface {
	// SaveRun 新建或覆盖运行状态。
	SaveRun(ctx context.Context, run *Run) error
	// GetRun 按 ID 读取运行状态，不存在时返回 ErrRunNotFound。
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns 按创建时间升序返回全部运行状态。
	ListRuns(ctx context.Context) ([]*Run, error)
	// Close 释放底层资源。
	Close() error
}
