package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    ByteRange
		wantErr bool
	}{
		{name: "first chunk", in: "bytes 0-2097151/20971520", want: ByteRange{0, 2097151, 20971520}},
		{name: "last byte", in: "bytes 9-9/10", want: ByteRange{9, 9, 10}},
		{name: "single byte file", in: "bytes 0-0/1", want: ByteRange{0, 0, 1}},
		{name: "end before start", in: "bytes 10-5/20", wantErr: true},
		{name: "end past total", in: "bytes 0-10/10", wantErr: true},
		{name: "missing unit", in: "0-10/20", wantErr: true},
		{name: "wildcard total", in: "bytes 0-10/*", wantErr: true},
		{name: "negative", in: "bytes -1-10/20", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "overflow", in: "bytes 0-1/99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseContentRange(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestByteRangeLen(t *testing.T) {
	assert.Equal(t, int64(2*1024*1024), ByteRange{Start: 0, End: 2*1024*1024 - 1, Total: 10 << 20}.Len())
	assert.Equal(t, int64(1), ByteRange{Start: 7, End: 7, Total: 8}.Len())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 0))
	assert.Equal(t, 0, Percent(0, 100))
	assert.Equal(t, 25, Percent(225<<20, 900<<20))
	assert.Equal(t, 50, Percent(1, 2))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(10, 10))
	assert.Equal(t, 100, Percent(11, 10))
}
