package handler

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardroberry/wardroberry/internal/api/storage"
)

func TestGarmentCursorRoundTrip(t *testing.T) {
	original := &storage.GarmentCursor{
		CreatedAt: time.Now().UTC(),
		GarmentID: "8f14e45f-ceea-4673-9aad-5dd0b01d7a92",
	}

	encoded := EncodeGarmentCursor(original)
	require.NotEmpty(t, encoded)

	decoded, err := DecodeGarmentCursor(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded)

	assert.Equal(t, original.GarmentID, decoded.GarmentID)
	assert.Equal(t, original.CreatedAt.UnixNano(), decoded.CreatedAt.UnixNano())
}

func TestDecodeGarmentCursor(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantNil bool
		wantErr bool
	}{
		{name: "empty cursor means first page", input: "", wantNil: true},
		{name: "not base64", input: "%%%", wantErr: true},
		{name: "missing separator", input: base64.StdEncoding.EncodeToString([]byte("12345")), wantErr: true},
		{name: "non-numeric timestamp", input: base64.StdEncoding.EncodeToString([]byte("abc|id")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursor, err := DecodeGarmentCursor(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, cursor)
			}
		})
	}
}
