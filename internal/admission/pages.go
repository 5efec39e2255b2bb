package admission

import (
	"html/template"
	"io"

	apperrors "kuraberu-broadcast/internal/common/errors"
)

// Page is one of the fixed confirmation pages shown to a clicking franchise.
type Page string

const (
	PageApplied     Page = "applied"
	PageInterested  Page = "interested"
	PageAlreadyUsed Page = "already_used"
	PageInvalid     Page = "invalid"
	PageUnavailable Page = "unavailable"
)

type pageContent struct {
	Title   string
	Heading string
	Message string
}

var pages = map[Page]pageContent{
	PageApplied: {
		Title:   "お申し込みを受け付けました",
		Heading: "お申し込みを受け付けました",
		Message: "運営事務局にて確認のうえ、配信の確定をご連絡します。確定まで今しばらくお待ちください。",
	},
	PageInterested: {
		Title:   "ご回答ありがとうございました",
		Heading: "ご回答ありがとうございました",
		Message: "今後も対応エリアの案件をご案内します。",
	},
	PageAlreadyUsed: {
		Title:   "このリンクは使用済みです",
		Heading: "このリンクは既に使用されています",
		Message: "ご回答は受付済みです。重ねての操作は不要です。",
	},
	PageInvalid: {
		Title:   "無効なリンクです",
		Heading: "無効なリンクです",
		Message: "リンクが正しくないか、有効期限が切れています。メールに記載のリンクをそのまま開いてください。",
	},
	PageUnavailable: {
		Title:   "ただいま処理できません",
		Heading: "ただいま処理できません",
		Message: "時間をおいて再度お試しください。",
	},
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Heading}}</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

// PageFor maps a click error to the page shown to the franchise. Internal
// failures get a generic page; nothing about the cause is rendered.
func PageFor(err error) Page {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeTokenAlreadyConsumed:
		return PageAlreadyUsed
	case apperrors.ErrCodeInvalidToken, apperrors.ErrCodeRoundNotFound, apperrors.ErrCodeInvalidParameter:
		return PageInvalid
	default:
		return PageUnavailable
	}
}

// Render writes page as a complete HTML document.
func Render(w io.Writer, page Page) error {
	content, ok := pages[page]
	if !ok {
		content = pages[PageInvalid]
	}
	return pageTemplate.Execute(w, content)
}
