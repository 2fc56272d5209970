package publish

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// 入力の上限はRedditのセルフポストの制限に合わせる。
const (
	MaxTitleRunes = 300
	MaxBodyRunes  = 40000
)

var subredditPattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,21}$`)

// Sanitizer はタイトルと本文のHTMLを除去する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// PublishInput は投稿リクエストの入力値。
// Subredditが空の場合は設定済みのデフォルトを使う。
type PublishInput struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Subreddit string `json:"subreddit,omitempty"`
}

// EditInput は編集リクエストの入力値。
// ExpectedUpdatedAtを指定した場合、現在のupdated_atと一致しなければ競合となる。
type EditInput struct {
	Title             string     `json:"title"`
	Body              string     `json:"body"`
	ExpectedUpdatedAt *time.Time `json:"expected_updated_at,omitempty"`
}

// CreateInput は下書き作成の入力値。
type CreateInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// cleanText はサニタイズ後のタイトルと本文を検証して返す。
func cleanText(s Sanitizer, title, body string) (string, string, error) {
	title = strings.TrimSpace(s.Sanitize(title))
	body = strings.TrimSpace(s.Sanitize(body))

	if title == "" {
		return "", "", fmt.Errorf("タイトルは必須です")
	}
	if n := utf8.RuneCountInString(title); n > MaxTitleRunes {
		return "", "", fmt.Errorf("タイトルは%d文字以内で入力してください（%d文字）", MaxTitleRunes, n)
	}
	if n := utf8.RuneCountInString(body); n > MaxBodyRunes {
		return "", "", fmt.Errorf("本文は%d文字以内で入力してください（%d文字）", MaxBodyRunes, n)
	}
	return title, body, nil
}

func validSubreddit(name string) bool {
	return subredditPattern.MatchString(name)
}
