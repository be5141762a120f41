package s3_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/adapters/s3"
)

func TestMaxSizeReader(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		maxSize    int64
		wantData   string
		wantErrMsg string
	}{
		{
			name:     "讀取小於限制的內容",
			input:    []byte("hello"),
			maxSize:  10,
			wantData: "hello",
		},
		{
			name:     "剛好等於限制",
			input:    []byte("hello"),
			maxSize:  5,
			wantData: "hello",
		},
		{
			name:       "讀取超過限制的內容",
			input:      []byte("hello world"),
			maxSize:    5,
			wantData:   "hello",
			wantErrMsg: "reach limit of 5 bytes",
		},
		{
			name:       "超過 KB 等級的限制",
			input:      bytes.Repeat([]byte("a"), 3000),
			maxSize:    2048,
			wantData:   string(bytes.Repeat([]byte("a"), 2048)),
			wantErrMsg: "reach limit of 2.00 KB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 每次只讀一個位元組，確認多次讀取也會正確累計
			reader := s3.NewMaxSizeReader(iotest.OneByteReader(bytes.NewReader(tt.input)), tt.maxSize)
			data, err := io.ReadAll(reader)
			assert.Equal(t, tt.wantData, string(data))

			if tt.wantErrMsg == "" {
				assert.NoError(t, err)
				return
			}
			var limitErr *s3.ReachLimitError
			require.True(t, errors.As(err, &limitErr))
			assert.Equal(t, tt.maxSize, limitErr.MaxBytes)
			assert.Equal(t, tt.wantErrMsg, err.Error())
		})
	}
}
