package broadcast

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"kuraberu-broadcast/internal/models"
)

const (
	ActionApply    = "broadcast_apply"
	ActionInterest = "broadcast_interest"
)

// Labels of the fields shown to franchises before they respond, and of the
// customer fields that are always withheld.
var (
	IncludedFields = []string{"エリア（市区町村まで）", "物件種別", "階数", "希望工事", "紹介料", "残り枠"}
	ExcludedFields = []string{"氏名", "電話番号", "番地以降の住所", "メールアドレス"}
)

// summary holds only the redacted case attributes a franchise may see.
type summary struct {
	Area           Area
	PropertyType   models.PropertyType
	Floors         int
	WorkItems      []string
	Fee            int
	RemainingSlots int
}

func (s summary) text() string {
	floors := "不明"
	if s.Floors > 0 {
		floors = fmt.Sprintf("%d階", s.Floors)
	}
	propertyType := string(s.PropertyType)
	if propertyType == "" {
		propertyType = "不明"
	}
	items := "未指定"
	if len(s.WorkItems) > 0 {
		items = strings.Join(s.WorkItems, "、")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "エリア: %s\n", s.Area.String())
	fmt.Fprintf(&b, "物件種別: %s\n", propertyType)
	fmt.Fprintf(&b, "階数: %s\n", floors)
	fmt.Fprintf(&b, "希望工事: %s\n", items)
	fmt.Fprintf(&b, "紹介料: %s円\n", formatYen(s.Fee))
	fmt.Fprintf(&b, "残り枠: %d社", s.RemainingSlots)
	return b.String()
}

func formatYen(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return s
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// actionLink builds "<base>?action=...&token=...[&roundId=...]".
func actionLink(baseURL, action, token, roundID string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		u = &url.URL{Path: baseURL}
	}
	q := u.Query()
	q.Set("action", action)
	q.Set("token", token)
	if roundID != "" {
		q.Set("roundId", roundID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func composeOffer(baseURL string, f models.Franchise, s summary, roundID, applyToken, interestToken string) models.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 御中\n\n", f.Name)
	b.WriteString("対応エリア内で新しい案件の枠が空いています。\n")
	b.WriteString("お客様の個人情報はお申し込み確定後にお知らせします。\n\n")
	b.WriteString("■ 案件概要\n")
	b.WriteString(s.text())
	b.WriteString("\n\n■ この案件に申し込む\n")
	b.WriteString(actionLink(baseURL, ActionApply, applyToken, roundID))
	b.WriteString("\n\n■ 今回は見送るが今後の案件に興味がある\n")
	b.WriteString(actionLink(baseURL, ActionInterest, interestToken, ""))
	b.WriteString("\n\n※ 各リンクは1回のみ有効です。\n")
	b.WriteString("※ お申し込みは先着順ではなく、運営事務局が確認のうえ確定します。\n")

	return models.Message{
		To:      f.Email,
		Subject: fmt.Sprintf("【案件のご案内】%s・%s", s.Area.String(), propertyLabel(s.PropertyType)),
		Body:    b.String(),
	}
}

func propertyLabel(p models.PropertyType) string {
	if p == "" {
		return "物件種別不明"
	}
	return string(p)
}
