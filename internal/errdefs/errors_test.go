package errdefs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"io", IO("read u32", 12, 4, io.ErrUnexpectedEOF), ErrIO},
		{"format", Format("parse header", "bad magic %#x", 0x1234), ErrFormat},
		{"validation", Validation("matmul", "input length %d != %d", 3, 4), ErrValidation},
		{"not found", NotFound("load tensor", "blk.0.attn_q.weight"), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.want)
			assert.Equal(t, tt.want, Category(tt.err))

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.want)
			assert.Equal(t, tt.want, Category(wrapped))
		})
	}
}

func TestIOErrorKeepsCause(t *testing.T) {
	err := IO("read bytes", 100, 8, io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "offset 100, size 8")
	assert.Contains(t, err.Error(), "read bytes")
}

func TestSentinelIdentity(t *testing.T) {
	errBadThing := Sentinel(ErrFormat, "bad thing")
	wrapped := fmt.Errorf("tensor %q: %w", "w", errBadThing)

	assert.ErrorIs(t, wrapped, errBadThing)
	assert.ErrorIs(t, wrapped, ErrFormat)
	assert.NotErrorIs(t, wrapped, ErrIO)
	assert.Equal(t, "bad thing", errBadThing.Error())
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("load tensor", "missing.weight")
	assert.Equal(t, `load tensor: "missing.weight": not found`, err.Error())
}

func TestCategoryUnknown(t *testing.T) {
	assert.Nil(t, Category(errors.New("plain")))
	assert.Nil(t, Category(nil))
}
