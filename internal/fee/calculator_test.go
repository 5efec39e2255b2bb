package fee

import (
	"testing"

	"kuraberu-broadcast/internal/common/config"
	"kuraberu-broadcast/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestComputeFee(t *testing.T) {
	calc := NewCalculator(config.FeeTableConfig{})

	tests := []struct {
		name       string
		cs         models.Case
		concurrent int
		want       int
	}{
		{
			name:       "single recipient ignores items",
			cs:         models.Case{PropertyType: models.PropertyApartment, Floors: 10, WorkItems: []string{"屋根補修単品"}},
			concurrent: 1,
			want:       20000,
		},
		{
			name:       "full job on a two floor house",
			cs:         models.Case{PropertyType: models.PropertyDetachedHouse, Floors: 2, WorkItems: []string{"外壁塗装"}},
			concurrent: 2,
			want:       20000,
		},
		{
			name:       "full job on a three floor apartment pays the surcharge",
			cs:         models.Case{PropertyType: models.PropertyApartment, Floors: 3, WorkItems: []string{"外壁塗装"}},
			concurrent: 2,
			want:       30000,
		},
		{
			name:       "add-on only suppresses the surcharge",
			cs:         models.Case{PropertyType: models.PropertyApartment, Floors: 3, WorkItems: []string{"外壁補修単品"}},
			concurrent: 2,
			want:       5000,
		},
		{
			name:       "detached house never pays the surcharge",
			cs:         models.Case{PropertyType: models.PropertyDetachedHouse, Floors: 3, WorkItems: []string{"屋根塗装"}},
			concurrent: 3,
			want:       20000,
		},
		{
			name:       "highest add-on tier wins",
			cs:         models.Case{PropertyType: models.PropertyDetachedHouse, Floors: 2, WorkItems: []string{"付帯部塗装単品", "ベランダ防水単品", "雨樋修理単品"}},
			concurrent: 4,
			want:       10000,
		},
		{
			name:       "lowest add-on tier alone",
			cs:         models.Case{PropertyType: models.PropertyDetachedHouse, Floors: 1, WorkItems: []string{"破風板補修単品"}},
			concurrent: 2,
			want:       3000,
		},
		{
			name:       "mixed add-on and full job on a high-rise",
			cs:         models.Case{PropertyType: models.PropertyShopOffice, Floors: 4, WorkItems: []string{"外壁補修単品", "屋根カバー工法"}},
			concurrent: 2,
			want:       30000,
		},
		{
			name:       "empty items fall back to standard",
			cs:         models.Case{PropertyType: models.PropertyDetachedHouse, Floors: 2},
			concurrent: 2,
			want:       20000,
		},
		{
			name:       "empty items on a high-rise pay the surcharge",
			cs:         models.Case{PropertyType: models.PropertyApartment, Floors: 5},
			concurrent: 2,
			want:       30000,
		},
		{
			name:       "unrecognized item counts as standard",
			cs:         models.Case{PropertyType: models.PropertyDetachedHouse, Floors: 1, WorkItems: []string{"太陽光パネル", "付帯部塗装単品"}},
			concurrent: 2,
			want:       20000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.ComputeFee(&tt.cs, tt.concurrent)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCalculator_Overrides(t *testing.T) {
	calc := NewCalculator(config.FeeTableConfig{SingleRecipient: 25000, HighRise: 35000})

	assert.Equal(t, 25000, calc.ComputeFee(&models.Case{}, 1))
	assert.Equal(t, 35000, calc.ComputeFee(&models.Case{PropertyType: models.PropertyFactory, Floors: 3, WorkItems: []string{"外壁塗装"}}, 2))
	assert.Equal(t, DefaultStandard, calc.ComputeFee(&models.Case{WorkItems: []string{"外壁塗装"}}, 2))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindAddOn, Classify("シーリング打ち替え単品"))
	assert.Equal(t, KindFullJob, Classify("外壁・屋根塗装"))
	assert.Equal(t, KindFullJob, Classify("unknown"))
}
