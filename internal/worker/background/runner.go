// Package background はリクエスト処理から切り離して実行する短命タスクの管理を提供する。
// 顧客メタデータの修復、補正済みカートの保存、通知送信、分析イベントの保存に使用する。
// 実行中のタスクはシャットダウン時にすべて待ち合わせる。
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultTimeout は1タスクあたりのデフォルトのタイムアウト。
const DefaultTimeout = 15 * time.Second

// ErrClosed はShutdown後にタスクを投入した場合のエラー。
var ErrClosed = errors.New("background runner is closed")

// Recorder はタスク実行結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordBackgroundTask(name string, success bool)
}

// Runner はバックグラウンドタスクを起動し、完了を追跡する。
type Runner struct {
	logger   *slog.Logger
	timeout  time.Duration
	recorder Recorder

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner は新しいRunnerを生成する。recorderはnilでもよい。
func NewRunner(logger *slog.Logger, timeout time.Duration, recorder Recorder) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger:   logger,
		timeout:  timeout,
		recorder: recorder,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Go はタスクをバックグラウンドで起動する。
// タスクにはリクエストとは独立した、タイムアウト付きのcontextが渡される。
// Shutdown後に呼ばれた場合はタスクを実行せずErrClosedを返す。
func (r *Runner) Go(name string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("シャットダウン中のためバックグラウンドタスクを破棄しました",
			slog.String("task", name),
		)
		return ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(name, fn)
	return nil
}

func (r *Runner) run(name string, fn func(ctx context.Context) error) {
	defer r.wg.Done()

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
	defer cancel()

	err := r.safeCall(ctx, name, fn)
	if r.recorder != nil {
		r.recorder.RecordBackgroundTask(name, err == nil)
	}

	if err != nil {
		r.logger.Error("バックグラウンドタスクが失敗しました",
			slog.String("task", name),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		return
	}
	r.logger.Debug("バックグラウンドタスクが完了しました",
		slog.String("task", name),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

func (r *Runner) safeCall(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("バックグラウンドタスクでpanicが発生しました",
				slog.String("task", name),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait は実行中のすべてのタスクの完了を待つ。
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown は新規タスクの受付を停止し、実行中のタスクの完了を待つ。
// ctxが先に終了した場合は実行中タスクのcontextをキャンセルし、ctx.Err()を返す。
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
