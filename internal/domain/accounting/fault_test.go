package accounting

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestClassifyActionResult(t *testing.T) {
	noneFault := &Fault{Code: 1, Message: "TypeError: cannot marshal None unless allow_none is enabled"}

	tests := []struct {
		name    string
		err     error
		wantNil bool
	}{
		{"nil stays nil", nil, true},
		{"none-marshal fault is success", noneFault, true},
		{"wrapped none-marshal fault is success", fmt.Errorf("action_post: %w", noneFault), true},
		{"other fault propagates", &Fault{Code: 2, Message: "ValidationError: journal locked"}, false},
		{"transport error propagates", errors.New("dial tcp: connection refused"), false},
		{"plain error with same text propagates", errors.New("cannot marshal None unless allow_none is enabled"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyActionResult(tt.err)
			if tt.wantNil {
				assert.NoError(t, got)
			} else {
				assert.Error(t, got)
				assert.Equal(t, tt.err, got)
			}
		})
	}
}

func TestInvoice_Date(t *testing.T) {
	d, ok := Invoice{InvoiceDate: "2025-02-01"}.Date()
	assert.True(t, ok)
	assert.Equal(t, 2025, d.Year())

	_, ok = Invoice{}.Date()
	assert.False(t, ok)

	_, ok = Invoice{InvoiceDate: "01/02/2025"}.Date()
	assert.False(t, ok)
}

func TestResidualAround(t *testing.T) {
	q := ResidualAround(decimal.RequireFromString("100.00"), decimal.RequireFromString("0.01"))

	assert.True(t, q.ResidualMin.Equal(decimal.RequireFromString("99.99")))
	assert.True(t, q.ResidualMax.Equal(decimal.RequireFromString("100.01")))
}
