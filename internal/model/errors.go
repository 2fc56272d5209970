// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, reddit, content, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated  = "UNAUTHENTICATED"
	ErrCodeRefreshExpired   = "REFRESH_EXPIRED"
	ErrCodeNotLinked        = "NOT_LINKED"
	ErrCodeLinkFailed       = "LINK_FAILED"
	ErrCodePublishFailed    = "PUBLISH_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyPublished = "ALREADY_PUBLISHED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
)

// NewUnauthenticatedError はアクセストークン不在・不正・期限切れのエラーを生成する。
// クライアントはリフレッシュを呼ぶことで回復できる。
func NewUnauthenticatedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  fmt.Sprintf("認証が必要です: %s", reason),
		Category: "auth",
		Action:   "トークンをリフレッシュするか、再度ログインしてください。",
	}
}

// NewRefreshExpiredError はリフレッシュトークンの期限切れ・不正のエラーを生成する。
func NewRefreshExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeRefreshExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewNotLinkedError はRedditアカウント未連携のエラーを生成する。
func NewNotLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotLinked,
		Message:  "Redditアカウントが連携されていません。",
		Category: "reddit",
		Action:   "設定画面からRedditアカウントを連携してください。",
	}
}

// NewLinkFailedError はRedditとの認可コード交換失敗のエラーを生成する。
func NewLinkFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLinkFailed,
		Message:  fmt.Sprintf("Redditアカウントの連携に失敗しました: %s", reason),
		Category: "reddit",
		Action:   "もう一度連携をやり直してください。",
	}
}

// NewPublishFailedError はRedditへの投稿失敗のエラーを生成する。
func NewPublishFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePublishFailed,
		Message:  fmt.Sprintf("Redditへの投稿に失敗しました: %s", reason),
		Category: "reddit",
		Action:   "しばらく待ってから再度お試しください。解決しない場合はRedditアカウントを再連携してください。",
	}
}

// NewNotFoundError はコンテンツ未検出エラーを生成する。
// 他ユーザーのコンテンツに対しても同じエラーを返し、存在を漏らさない。
func NewNotFoundError(contentID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定されたコンテンツが見つかりません: %s", contentID),
		Category: "content",
		Action:   "コンテンツIDを確認してください。",
	}
}

// NewAlreadyPublishedError は投稿済みコンテンツの再投稿エラーを生成する。
func NewAlreadyPublishedError(remotePostID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyPublished,
		Message:  fmt.Sprintf("このコンテンツは既にRedditに投稿されています: %s", remotePostID),
		Category: "content",
		Action:   "投稿済みのコンテンツは編集のみ可能です。",
	}
}

// NewConflictError は楽観ロックの競合エラーを生成する。
func NewConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  "コンテンツは他の操作によって更新されています。",
		Category: "content",
		Action:   "最新の内容を再読み込みしてから編集してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
