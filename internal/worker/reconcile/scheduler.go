// Package reconcile はReddit投稿のエンゲージメント指標を定期的に同期するスケジューラを提供する。
// 鮮度ポリシー、並列数の制御、レート制限時のバックオフ、アイテム単位のCAS書き込みを含む。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/postpilot/internal/events"
	"github.com/hitoshi/postpilot/internal/metrics"
	"github.com/hitoshi/postpilot/internal/model"
)

// Config はスケジューラの設定パラメータ。
type Config struct {
	// Interval はティックの間隔（デフォルト: 2分）。
	Interval time.Duration
	// MaxConcurrent は1ティック内で同時に処理するアイテム数の上限（デフォルト: 4）。
	MaxConcurrent int
	// ItemTimeout は1アイテムの処理（トークン取得、指標取得、書き込み）の上限時間（デフォルト: 20秒）。
	ItemTimeout time.Duration
	// Policy は鮮度ポリシー。
	Policy Policy
}

// DefaultConfig はデフォルトのスケジューラ設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:      2 * time.Minute,
		MaxConcurrent: 4,
		ItemTimeout:   20 * time.Second,
		Policy:        DefaultPolicy(),
	}
}

// RunStats は1回の同期パスの集計結果。
type RunStats struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Option はSchedulerの任意の依存を設定する。
type Option func(*Scheduler)

// WithLocker はティックの排他に使うロックを設定する。
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithPublisher は指標更新イベントの発行先を設定する。
func WithPublisher(p EventPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler は投稿済みアイテムの指標をRedditと同期する。
// ティックごとに対象を1クエリで取得し、semaphoreパターンで並列数を制御しながら処理する。
type Scheduler struct {
	store     ContentStore
	remote    RemotePlatform
	locker    Locker
	publisher EventPublisher
	recorder  Recorder
	logger    *slog.Logger
	config    Config
	now       func() time.Time

	backoffMu    sync.Mutex
	backoffUntil time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	running  sync.WaitGroup
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// 0以下の設定値はデフォルト値で補う。
func NewScheduler(store ContentStore, remote RemotePlatform, logger *slog.Logger, cfg Config, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = def.ItemTimeout
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = def.Policy
	}

	s := &Scheduler{
		store:     store,
		remote:    remote,
		publisher: events.Nop{},
		recorder:  metrics.Nop{},
		logger:    logger,
		config:    cfg,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start はティッカーでスケジューラを起動する。
// ctxのキャンセルまたはStopの呼び出しまでブロックする。
// 停止時は処理中のアイテムを完了させ、新しいアイテムには着手しない。
func (s *Scheduler) Start(ctx context.Context) {
	s.running.Add(1)
	defer s.running.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", s.config.Interval),
		slog.Int("max_concurrent", s.config.MaxConcurrent),
		slog.Duration("item_timeout", s.config.ItemTimeout),
	)

	// 起動直後に1回実行
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop はスケジューラに停止を通知し、実行中のティックが終わるまで待つ。
// 複数回呼んでもよい。Startしていない場合は即座に戻る。
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.running.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("同期ティックの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は全ユーザーの投稿済みアイテムを対象に1回の同期パスを実行する。
// ロックが設定されていて他のワーカーが保持している場合は何もしない。
func (s *Scheduler) RunOnce(ctx context.Context) (RunStats, error) {
	if s.locker != nil {
		acquired, err := s.locker.TryAcquire(ctx)
		if err != nil {
			return RunStats{}, fmt.Errorf("acquire tick lock: %w", err)
		}
		if !acquired {
			s.logger.Info("他のワーカーが同期ティックを実行中のためスキップします")
			return RunStats{}, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("同期ティックのロック解放に失敗しました", slog.String("error", err.Error()))
			}
		}()
	}
	return s.run(ctx, "")
}

// RunForUser は指定ユーザーの投稿済みアイテムだけを対象に同期パスを実行する。
// 手動の指標更新に使う。鮮度ポリシーとバックオフは定期実行と同じく適用する。
func (s *Scheduler) RunForUser(ctx context.Context, userID string) (RunStats, error) {
	if userID == "" {
		return RunStats{}, fmt.Errorf("user id is required")
	}
	return s.run(ctx, userID)
}

func (s *Scheduler) run(ctx context.Context, userID string) (RunStats, error) {
	start := s.now()

	targets, err := s.store.ListReconcileTargets(ctx, userID)
	if err != nil {
		return RunStats{}, fmt.Errorf("list reconcile targets: %w", err)
	}

	tally := &tally{stats: RunStats{Candidates: len(targets)}}
	if len(targets) == 0 {
		s.logger.Debug("同期対象の投稿はありません")
		s.recorder.RecordReconcileRun(s.now().Sub(start), 0)
		return tally.stats, nil
	}

	s.logger.Info("同期ティックを開始します",
		slog.Int("candidates", len(targets)),
		slog.String("scope_user_id", userID),
	)

	tokens := newTokenCache(s.remote)
	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup

dispatch:
	for _, target := range targets {
		if outcome, skip := s.precheck(start, target); skip {
			s.record(tally, target, outcome)
			continue
		}

		// 停止要求後は新しいアイテムに着手しない
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(t *model.ReconcileTarget) {
			defer wg.Done()
			defer func() { <-sem }()

			itemCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ItemTimeout)
			defer cancel()
			s.record(tally, t, s.reconcileItem(itemCtx, t, tokens))
		}(target)
	}

	wg.Wait()

	duration := s.now().Sub(start)
	s.recorder.RecordReconcileRun(duration, len(targets))
	s.logger.Info("同期ティックが完了しました",
		slog.Int("candidates", tally.stats.Candidates),
		slog.Int("updated", tally.stats.Updated),
		slog.Int("skipped", tally.stats.Skipped),
		slog.Int("failed", tally.stats.Failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return tally.stats, nil
}

// precheck はリモート呼び出しの前に判定できるスキップ理由を返す。
func (s *Scheduler) precheck(now time.Time, t *model.ReconcileTarget) (string, bool) {
	if t.RefreshToken == nil || *t.RefreshToken == "" {
		return OutcomeNoCredential, true
	}
	if !s.config.Policy.Due(now, t.CreatedAt, t.LastReconciledAt) {
		return OutcomeFresh, true
	}
	if s.inBackoff(now) {
		return OutcomeBackoff, true
	}
	return "", false
}

func (s *Scheduler) record(tally *tally, t *model.ReconcileTarget, outcome string) {
	tally.add(outcome)
	s.recorder.RecordReconcileItem(outcome)
	if outcome == OutcomeNoCredential {
		s.logger.Info("Reddit未連携のユーザーの投稿をスキップしました",
			slog.String("content_id", t.ID),
			slog.String("user_id", t.UserID),
		)
	}
}

// tally は並列に処理されるアイテムの結果を集計する。
type tally struct {
	mu    sync.Mutex
	stats RunStats
}

func (t *tally) add(outcome string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch outcome {
	case OutcomeUpdated:
		t.stats.Updated++
	case OutcomeFailed:
		t.stats.Failed++
	default:
		t.stats.Skipped++
	}
}
