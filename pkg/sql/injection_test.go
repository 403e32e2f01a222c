package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

func TestCheckParameterForInjection(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		injection bool
	}{
		{name: "clean word", value: "shipped", injection: false},
		{name: "clean multi word", value: "laptop computers", injection: false},
		{name: "clean date", value: "2024-01-15", injection: false},
		{name: "integer", value: int64(100), injection: false},
		{name: "float", value: 99.5, injection: false},
		{name: "nil", value: nil, injection: false},
		{name: "tautology", value: "' OR '1'='1", injection: true},
		{name: "stacked query", value: "'; DROP TABLE users--", injection: true},
		{name: "union select", value: "1 UNION SELECT * FROM passwords", injection: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckParameterForInjection("p1", tt.value)
			if !tt.injection {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.Equal(t, "p1", result.ParamName)
			assert.NotEmpty(t, result.Fingerprint)
		})
	}
}

func TestCheckBoundParameters(t *testing.T) {
	params := []models.BoundParameter{
		{Name: "p1", Position: 1, Value: "shipped"},
		{Name: "p2", Position: 2, Value: "' OR '1'='1"},
		{Name: "p3", Position: 3, Value: int64(7)},
	}

	results := CheckBoundParameters(params)

	require.Len(t, results, 1)
	assert.Equal(t, "p2", results[0].ParamName)
	assert.Equal(t, 2, results[0].Position)
	assert.Empty(t, CheckBoundParameters(nil))
}
