package broadcast

import (
	"net/url"
	"testing"

	"kuraberu-broadcast/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatYen(t *testing.T) {
	assert.Equal(t, "0", formatYen(0))
	assert.Equal(t, "5,000", formatYen(5000))
	assert.Equal(t, "20,000", formatYen(20000))
	assert.Equal(t, "1,234,567", formatYen(1234567))
}

func TestActionLink(t *testing.T) {
	link := actionLink("https://broadcast.example.jp/exec?v=2", ActionApply, "abc", "r-1")

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "broadcast.example.jp", u.Host)
	assert.Equal(t, "2", u.Query().Get("v"))
	assert.Equal(t, ActionApply, u.Query().Get("action"))
	assert.Equal(t, "abc", u.Query().Get("token"))
	assert.Equal(t, "r-1", u.Query().Get("roundId"))

	interest := actionLink("https://broadcast.example.jp/exec", ActionInterest, "xyz", "")
	assert.Equal(t, "https://broadcast.example.jp/exec?action=broadcast_interest&token=xyz", interest)
}

func TestSummaryText_UnknownFields(t *testing.T) {
	s := summary{Area: Area{Province: "沖縄県"}, Fee: 20000, RemainingSlots: 2}
	text := s.text()

	assert.Contains(t, text, "エリア: 沖縄県")
	assert.Contains(t, text, "物件種別: 不明")
	assert.Contains(t, text, "階数: 不明")
	assert.Contains(t, text, "希望工事: 未指定")
	assert.Contains(t, text, "残り枠: 2社")
}

func TestComposeOffer(t *testing.T) {
	f := models.Franchise{ID: "F1", Name: "山田塗装", Email: "yamada@example.jp"}
	s := summary{
		Area:           Area{"神奈川県", "横浜市港北区"},
		PropertyType:   models.PropertyDetachedHouse,
		Floors:         2,
		WorkItems:      []string{"外壁塗装", "雨樋修理単品"},
		Fee:            20000,
		RemainingSlots: 3,
	}

	msg := composeOffer("https://broadcast.example.jp/exec", f, s, "R1", "T-apply", "T-interest")

	assert.Equal(t, "yamada@example.jp", msg.To)
	assert.Equal(t, "【案件のご案内】神奈川県横浜市港北区・戸建て住宅", msg.Subject)
	assert.Contains(t, msg.Body, "山田塗装 御中")
	assert.Contains(t, msg.Body, "希望工事: 外壁塗装、雨樋修理単品")
	assert.Contains(t, msg.Body, "階数: 2階")
	assert.Contains(t, msg.Body, "?action=broadcast_apply&roundId=R1&token=T-apply")
	assert.Contains(t, msg.Body, "?action=broadcast_interest&token=T-interest")
}
