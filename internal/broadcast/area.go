package broadcast

import (
	"regexp"
	"strings"

	"kuraberu-broadcast/internal/models"
)

var (
	prefecturePattern = regexp.MustCompile(`^(東京都|北海道|(?:京都|大阪)府|.{2,3}?県)`)

	// nameSegment is the leading run of an address before any lot number,
	// space or dash. Municipality names never contain those.
	nameSegment = regexp.MustCompile(`^[^0-9０-９\s\x{3000}\-－−‐―]+`)

	specialWardPattern = regexp.MustCompile(`^[^市郡町村区]+?区`)
	wardPattern        = regexp.MustCompile(`^[^市郡町区]{1,5}区`)
	countyPattern      = regexp.MustCompile(`^(.+?郡)(.+?[町村])`)
	townPattern        = regexp.MustCompile(`^[^市区郡]+?[町村]`)
)

// designatedCities carry wards ("横浜市港北区"); a 区 after any other city
// belongs to the street part of the address.
var designatedCities = []string{
	"札幌市", "仙台市", "さいたま市", "千葉市", "横浜市", "川崎市", "相模原市",
	"新潟市", "静岡市", "浜松市", "名古屋市", "京都市", "大阪市", "堺市",
	"神戸市", "岡山市", "広島市", "北九州市", "福岡市", "熊本市",
}

// cities whose own name ends in 市 before the 市 suffix.
var doubledCityNames = []string{"四日市市", "廿日市市"}

// Area is the municipality-level location of a case. Street-level detail is
// dropped on purpose and never stored here.
type Area struct {
	Province     string
	Municipality string
}

// Key is the string matched against franchise service areas: the
// municipality when known, otherwise the province.
func (a Area) Key() string {
	if a.Municipality != "" {
		return a.Municipality
	}
	return a.Province
}

func (a Area) String() string {
	return a.Province + a.Municipality
}

// ResolveArea derives the case area from its structured fields, falling back
// to the free-text address. ok is false when no province can be derived.
func ResolveArea(c *models.Case) (Area, bool) {
	area := Area{
		Province:     strings.TrimSpace(c.Province),
		Municipality: strings.TrimSpace(c.Municipality),
	}

	if area.Province == "" {
		parsed, ok := ParseAddress(c.Address)
		if !ok {
			return Area{}, false
		}
		if area.Municipality == "" {
			area.Municipality = parsed.Municipality
		}
		area.Province = parsed.Province
		return area, true
	}

	if area.Municipality == "" {
		rest := strings.TrimPrefix(strings.TrimSpace(c.Address), area.Province)
		area.Municipality = matchMunicipality(rest)
	}
	return area, true
}

// ParseAddress splits a Japanese postal address into prefecture and
// municipality ("神奈川県横浜市港北区日吉1-2-3" -> 神奈川県 / 横浜市港北区).
func ParseAddress(address string) (Area, bool) {
	address = strings.TrimSpace(address)
	m := prefecturePattern.FindString(address)
	if m == "" {
		return Area{}, false
	}
	return Area{
		Province:     m,
		Municipality: matchMunicipality(strings.TrimPrefix(address, m)),
	}, true
}

// matchMunicipality returns the municipality at the start of s, or "" when
// none can be told apart from the street part.
func matchMunicipality(s string) string {
	seg := nameSegment.FindString(strings.TrimSpace(s))
	if seg == "" {
		return ""
	}

	for _, city := range designatedCities {
		if strings.HasPrefix(seg, city) {
			return city + wardPattern.FindString(strings.TrimPrefix(seg, city))
		}
	}
	if ward := specialWardPattern.FindString(seg); ward != "" {
		return ward
	}

	city := matchCity(seg)
	county := ""
	if m := countyPattern.FindString(seg); m != "" {
		county = m
	}
	switch {
	case city != "" && county != "":
		// 大和郡山市北郡山町 is a city; 東牟婁郡串本町市場 is a county town
		if len(county) < len(city) {
			return county
		}
		return city
	case city != "":
		return city
	case county != "":
		return county
	}
	return townPattern.FindString(seg)
}

// matchCity returns the leading "…市" of seg. A 市 directly followed by
// 町, 村 or 郡 is part of a town or county name (上市町, 余市郡) and is skipped.
func matchCity(seg string) string {
	for _, name := range doubledCityNames {
		if strings.HasPrefix(seg, name) {
			return name
		}
	}
	runes := []rune(seg)
	for i := 1; i < len(runes); i++ {
		if runes[i] != '市' {
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune("町村郡", runes[i+1]) {
			continue
		}
		return string(runes[:i+1])
	}
	return ""
}
