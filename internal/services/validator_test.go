package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchcoin/backend/internal/apperror"
)

func TestNewValidatorLoadsEmbeddedSchemas(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	assert.Contains(t, v.schemas, "stripe")
	assert.Contains(t, v.schemas, "cryptomus")
	assert.Contains(t, v.schemas, "sandbox")
}

func TestValidateWebhook(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name     string
		provider string
		body     string
		wantErr  bool
	}{
		{"stripe ok", "stripe", `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":"paid"}}}`, false},
		{"stripe missing session", "stripe", `{"id":"evt_1","type":"checkout.session.completed","data":{}}`, true},
		{"cryptomus ok", "cryptomus", `{"type":"payment","uuid":"u-1","order_id":"wc_1","status":"paid","sign":"0123456789abcdef0123456789abcdef"}`, false},
		{"cryptomus no sign", "cryptomus", `{"uuid":"u-1","order_id":"wc_1","status":"paid"}`, true},
		{"sandbox ok", "sandbox", `{"ref":"sb_1","status":"paid"}`, false},
		{"sandbox bad status", "sandbox", `{"ref":"sb_1","status":"refunded"}`, true},
		{"sandbox extra field", "sandbox", `{"ref":"sb_1","status":"paid","coins":9999}`, true},
		{"not json", "stripe", `{"id":`, true},
		{"unknown provider only needs json", "other", `{"anything":1}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateWebhook(tt.provider, []byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}
