package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/postpilot/internal/events"
	"github.com/hitoshi/postpilot/internal/model"
	"github.com/hitoshi/postpilot/internal/repository"
)

// 投稿結果のメトリクスラベル。
const (
	OutcomePublished        = "published"
	OutcomeAlreadyPublished = "already_published"
	OutcomeNotLinked        = "not_linked"
	OutcomeNotFound         = "not_found"
	OutcomeInvalid          = "invalid"
	OutcomeFailed           = "failed"
)

// PublishItem はコンテンツをRedditにセルフポストとして投稿する。
// 行ロックを取ったトランザクション内で投稿済みかを確認するため、同じアイテムの同時投稿は1回しか成功しない。
// 投稿直後の指標取得に失敗した場合は指標0として保存し、以後の同期で補正する。
func (s *Service) PublishItem(ctx context.Context, userID, itemID string, in PublishInput) (*PublishResult, error) {
	title, body, err := cleanText(s.sanitizer, in.Title, in.Body)
	if err != nil {
		s.recorder.RecordPublish(OutcomeInvalid)
		return nil, model.NewValidationError(err.Error())
	}
	subreddit := s.config.DefaultSubreddit
	if in.Subreddit != "" {
		if !validSubreddit(in.Subreddit) {
			s.recorder.RecordPublish(OutcomeInvalid)
			return nil, model.NewValidationError("subreddit名が不正です")
		}
		subreddit = in.Subreddit
	}

	logger := s.logger.With(
		slog.String("user_id", userID),
		slog.String("content_id", itemID),
	)

	// トランザクションはリクエストのキャンセルから切り離す。
	// Redditが投稿を受理した後は、クライアントが切断しても投稿IDの保存まで完了させる。
	txCtx := context.WithoutCancel(ctx)

	var result *PublishResult
	err = s.tx.WithTransaction(txCtx, func(txCtx context.Context) error {
		lockCtx, cancel := context.WithTimeout(txCtx, s.config.PersistTimeout)
		defer cancel()
		content, err := s.contents.LockByIDForUser(lockCtx, itemID, userID)
		if err != nil {
			return fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
		}
		if content == nil {
			return model.NewNotFoundError(itemID)
		}
		if content.IsPublished() {
			return model.NewAlreadyPublishedError(*content.RemotePostID)
		}
		// ロック待ちの間に切断された場合は投稿しない
		if err := ctx.Err(); err != nil {
			return err
		}

		accessToken, err := s.linkedAccessToken(ctx, userID)
		if err != nil {
			return publishError(err)
		}

		postID, err := s.remote.Submit(ctx, accessToken, subreddit, title, body)
		if err != nil {
			return publishError(err)
		}

		persistCtx, cancelPersist := context.WithTimeout(txCtx, s.config.PersistTimeout)
		defer cancelPersist()

		fetched, err := s.remote.FetchMetrics(persistCtx, accessToken, postID)
		if err != nil {
			logger.Warn("投稿直後の指標取得に失敗したため指標0で保存します",
				slog.String("remote_post_id", postID),
				slog.String("error", err.Error()),
			)
			fetched = model.Metrics{}
		}

		publishedAt := s.timestamp()
		ok, err := s.contents.MarkPublished(persistCtx, content.ID, repository.PublishRecord{
			Title:        title,
			Body:         body,
			RemotePostID: postID,
			Metrics:      fetched,
			PublishedAt:  publishedAt,
		})
		if err != nil {
			// リモートには投稿済みだがローカルに記録できていない
			logger.Error("投稿結果の保存に失敗しました",
				slog.String("remote_post_id", postID),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("投稿結果の保存に失敗しました: %w", err)
		}
		if !ok {
			return model.NewAlreadyPublishedError(postID)
		}

		result = &PublishResult{
			ContentID:    content.ID,
			RemotePostID: postID,
			Metrics:      fetched,
			PublishedAt:  publishedAt,
		}
		return nil
	})
	if err != nil {
		s.recorder.RecordPublish(publishOutcome(err))
		return nil, err
	}

	s.recorder.RecordPublish(OutcomePublished)
	logger.Info("Redditに投稿しました",
		slog.String("remote_post_id", result.RemotePostID),
		slog.String("subreddit", subreddit),
	)
	s.emit(txCtx, events.Event{
		Type:         events.TypeContentPublished,
		ContentID:    result.ContentID,
		UserID:       userID,
		RemotePostID: result.RemotePostID,
		Metrics:      result.Metrics,
		OccurredAt:   result.PublishedAt,
	})
	return result, nil
}

// publishError はリモート呼び出しのエラーをPublishFailedに変換する。APIErrorはそのまま返す。
func publishError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return model.NewPublishFailedError(err.Error())
}

func publishOutcome(err error) string {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return OutcomeFailed
	}
	switch apiErr.Code {
	case model.ErrCodeAlreadyPublished:
		return OutcomeAlreadyPublished
	case model.ErrCodeNotLinked:
		return OutcomeNotLinked
	case model.ErrCodeNotFound:
		return OutcomeNotFound
	default:
		return OutcomeFailed
	}
}

// EditPublishedItem はコンテンツのタイトルと本文を編集する。
// 投稿済みの場合、本文はRedditにも反映する。Redditのタイトルは変更できないためタイトルはローカルのみ更新する。
// 行ロックを取ったうえでupdated_atを照合するため、競合時はRedditにも反映せずConflictを返す。
func (s *Service) EditPublishedItem(ctx context.Context, userID, itemID string, in EditInput) (*model.Content, error) {
	title, body, err := cleanText(s.sanitizer, in.Title, in.Body)
	if err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	var edited *model.Content
	err = s.tx.WithTransaction(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		lockCtx, cancel := context.WithTimeout(txCtx, s.config.PersistTimeout)
		defer cancel()
		content, err := s.contents.LockByIDForUser(lockCtx, itemID, userID)
		if err != nil {
			return fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
		}
		if content == nil {
			return model.NewNotFoundError(itemID)
		}

		expected := content.UpdatedAt
		if in.ExpectedUpdatedAt != nil {
			if !in.ExpectedUpdatedAt.Equal(content.UpdatedAt) {
				return model.NewConflictError()
			}
			expected = *in.ExpectedUpdatedAt
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if content.IsPublished() && body != content.Body {
			accessToken, err := s.linkedAccessToken(ctx, userID)
			if err != nil {
				return publishError(err)
			}
			if err := s.remote.EditText(ctx, accessToken, *content.RemotePostID, body); err != nil {
				s.logger.Warn("Reddit投稿の本文編集に失敗しました",
					slog.String("content_id", itemID),
					slog.String("error", err.Error()),
				)
				return model.NewPublishFailedError(err.Error())
			}
		}

		persistCtx, cancelPersist := context.WithTimeout(txCtx, s.config.PersistTimeout)
		defer cancelPersist()
		updatedAt := s.timestamp()
		ok, err := s.contents.UpdateText(persistCtx, itemID, userID, title, body, updatedAt, expected)
		if err != nil {
			return fmt.Errorf("コンテンツの更新に失敗しました: %w", err)
		}
		if !ok {
			return model.NewConflictError()
		}

		cp := *content
		cp.Title = title
		cp.Body = body
		cp.UpdatedAt = updatedAt
		edited = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edited, nil
}

// DeleteItem はコンテンツを削除する。
// 投稿済みかつ連携済みの場合はRedditの投稿も削除を試みるが、失敗してもローカルの削除は行う。
func (s *Service) DeleteItem(ctx context.Context, userID, itemID string) error {
	content, err := s.contents.FindByIDForUser(ctx, itemID, userID)
	if err != nil {
		return fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	if content == nil {
		return model.NewNotFoundError(itemID)
	}

	remotePostID := ""
	if content.IsPublished() {
		remotePostID = *content.RemotePostID
		s.deleteRemote(ctx, userID, itemID, remotePostID)
	}

	ok, err := s.contents.DeleteForUser(ctx, itemID, userID)
	if err != nil {
		return fmt.Errorf("コンテンツの削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewNotFoundError(itemID)
	}

	s.emit(ctx, events.Event{
		Type:         events.TypeContentDeleted,
		ContentID:    itemID,
		UserID:       userID,
		RemotePostID: remotePostID,
		OccurredAt:   s.timestamp(),
	})
	return nil
}

func (s *Service) deleteRemote(ctx context.Context, userID, itemID, postID string) {
	logger := s.logger.With(
		slog.String("content_id", itemID),
		slog.String("remote_post_id", postID),
	)

	accessToken, err := s.linkedAccessToken(ctx, userID)
	if err != nil {
		logger.Info("Reddit投稿を削除できないためローカルのみ削除します", slog.String("error", err.Error()))
		return
	}
	if err := s.remote.Delete(ctx, accessToken, postID); err != nil {
		logger.Warn("Reddit投稿の削除に失敗しました", slog.String("error", err.Error()))
	}
}
