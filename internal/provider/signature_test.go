package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifier(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	payload := []byte(`{"id":"evt_1"}`)

	v := NewHMACVerifier("whsec_test", 5*time.Minute)
	v.now = func() time.Time { return now }

	valid := v.Sign(payload, now)

	tests := []struct {
		name    string
		payload []byte
		header  string
		wantErr error
	}{
		{name: "valid", payload: payload, header: valid},
		{name: "missing header", payload: payload, header: "", wantErr: ErrInvalidSignature},
		{name: "tampered payload", payload: []byte(`{"id":"evt_2"}`), header: valid, wantErr: ErrInvalidSignature},
		{name: "wrong secret", payload: payload, header: NewHMACVerifier("other", 0).Sign(payload, now), wantErr: ErrInvalidSignature},
		{name: "no v1", payload: payload, header: "t=1760000000", wantErr: ErrInvalidSignature},
		{name: "stale", payload: payload, header: v.Sign(payload, now.Add(-10*time.Minute)), wantErr: ErrSignatureExpired},
		{name: "extra garbage signature", payload: payload, header: valid + ",v1=zz", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.payload, tt.header)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
