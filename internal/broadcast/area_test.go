package broadcast

import (
	"testing"

	"kuraberu-broadcast/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		address string
		want    Area
		ok      bool
	}{
		{"東京都千代田区丸の内1-1-1", Area{"東京都", "千代田区"}, true},
		{"神奈川県横浜市港北区日吉2-3-4", Area{"神奈川県", "横浜市港北区"}, true},
		{"京都府京都市左京区岩倉1", Area{"京都府", "京都市左京区"}, true},
		{"大阪府堺市堺区1-2", Area{"大阪府", "堺市堺区"}, true},
		{"北海道札幌市中央区北1条", Area{"北海道", "札幌市中央区"}, true},
		{"和歌山県東牟婁郡串本町串本100", Area{"和歌山県", "東牟婁郡串本町"}, true},
		{"東京都町田市原町田6-1", Area{"東京都", "町田市"}, true},
		{"  埼玉県さいたま市浦和区  ", Area{"埼玉県", "さいたま市浦和区"}, true},
		{"愛知県名古屋市中村区名駅1-1", Area{"愛知県", "名古屋市中村区"}, true},
		{"千葉県柏市若柴178-4 柏の葉キャンパス148街区", Area{"千葉県", "柏市"}, true},
		{"福岡県久留米市東町1 第2地区", Area{"福岡県", "久留米市"}, true},
		{"埼玉県川越市南台　区画整理地内", Area{"埼玉県", "川越市"}, true},
		{"埼玉県川越市南台 区画整理地内", Area{"埼玉県", "川越市"}, true},
		{"東京都武蔵村山市本町1-1", Area{"東京都", "武蔵村山市"}, true},
		{"東京都羽村市緑ヶ丘1-1", Area{"東京都", "羽村市"}, true},
		{"東京都東村山市本町1-2", Area{"東京都", "東村山市"}, true},
		{"奈良県大和郡山市北郡山町248", Area{"奈良県", "大和郡山市"}, true},
		{"福島県郡山市朝日1-1", Area{"福島県", "郡山市"}, true},
		{"三重県四日市市諏訪町1-5", Area{"三重県", "四日市市"}, true},
		{"千葉県市川市市川1-1", Area{"千葉県", "市川市"}, true},
		{"北海道余市郡余市町黒川町1", Area{"北海道", "余市郡余市町"}, true},
		{"富山県中新川郡上市町横法音寺1", Area{"富山県", "中新川郡上市町"}, true},
		{"和歌山県東牟婁郡串本町市場1", Area{"和歌山県", "東牟婁郡串本町"}, true},
		{"東京都大島町元町1", Area{"東京都", "大島町"}, true},
		{"千葉県", Area{"千葉県", ""}, true},
		{"渋谷区神南1-2-3", Area{}, false},
		{"", Area{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, ok := ParseAddress(tt.address)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveArea(t *testing.T) {
	tests := []struct {
		name    string
		c       models.Case
		want    Area
		wantKey string
		ok      bool
	}{
		{
			name:    "structured fields win",
			c:       models.Case{Province: "愛知県", Municipality: "名古屋市中区", Address: "東京都渋谷区"},
			want:    Area{"愛知県", "名古屋市中区"},
			wantKey: "名古屋市中区",
			ok:      true,
		},
		{
			name:    "municipality filled from address",
			c:       models.Case{Province: "福岡県", Address: "福岡県北九州市小倉北区1-1"},
			want:    Area{"福岡県", "北九州市小倉北区"},
			wantKey: "北九州市小倉北区",
			ok:      true,
		},
		{
			name:    "address only",
			c:       models.Case{Address: "静岡県浜松市中央区1-2-3"},
			want:    Area{"静岡県", "浜松市中央区"},
			wantKey: "浜松市中央区",
			ok:      true,
		},
		{
			name:    "province only keys on province",
			c:       models.Case{Province: "沖縄県"},
			want:    Area{"沖縄県", ""},
			wantKey: "沖縄県",
			ok:      true,
		},
		{
			name: "unresolved",
			c:    models.Case{Municipality: "渋谷区", Address: "渋谷区神南"},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveArea(&tt.c)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantKey, got.Key())
		})
	}
}
