package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Topic
	}{
		{"known topic", "board-card", BoardCard},
		{"user private", "user-private", UserPrivate},
		{"global", "global", Global},
		{"unknown coerces to none", "board-sticker", None},
		{"empty coerces to none", "", None},
		{"case sensitive", "Board-Card", None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestRequiresID(t *testing.T) {
	assert.False(t, None.RequiresID())
	assert.False(t, Global.RequiresID())
	assert.True(t, UserPrivate.RequiresID())
	assert.True(t, BoardCard.RequiresID())
	assert.True(t, BoardWiki.RequiresID())
}
