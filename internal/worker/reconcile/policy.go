package reconcile

import "time"

// Policy は投稿の経過時間に応じた再同期間隔（鮮度ポリシー）。
// 投稿直後は反応が大きく変わるので頻繁に、古い投稿は1日1回だけ同期する。
type Policy struct {
	// YoungAge 以下の経過時間の投稿を「新しい投稿」とみなす。
	YoungAge time.Duration
	// YoungInterval は新しい投稿の最小再同期間隔。
	YoungInterval time.Duration
	// OldInterval は古い投稿の最小再同期間隔。
	OldInterval time.Duration
}

// DefaultPolicy はデフォルトの鮮度ポリシーを返す。
func DefaultPolicy() Policy {
	return Policy{
		YoungAge:      24 * time.Hour,
		YoungInterval: time.Hour,
		OldInterval:   24 * time.Hour,
	}
}

// Due はアイテムをこのティックで同期すべきかを返す。
// 経過時間はcreatedAtから数える。一度も同期していないアイテムは常に対象になる。
func (p Policy) Due(now, createdAt time.Time, lastReconciledAt *time.Time) bool {
	if lastReconciledAt == nil {
		return true
	}
	since := now.Sub(*lastReconciledAt)
	if now.Sub(createdAt) <= p.YoungAge {
		return since >= p.YoungInterval
	}
	return since >= p.OldInterval
}
