package reddit

import "net/http"

// DefaultUserAgent はUserAgent未設定時に送る値。RedditはUser-Agentの無いリクエストを制限する。
const DefaultUserAgent = "postpilot/1.0"

// userAgentTransport はすべてのリクエストにUser-Agentを付与するRoundTripper。
// トークンエンドポイントへのoauth2の呼び出しにも適用される。
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func newUserAgentTransport(base http.RoundTripper, userAgent string) *userAgentTransport {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &userAgentTransport{base: base, userAgent: userAgent}
}

// RoundTrip は元のリクエストを変更せず、複製にUser-Agentを設定して送信する。
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
