package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFolder(t *testing.T) {
	owner := activeMembership(t, "t1")

	for _, name := range []string{"Loot", "maps2026", "A"} {
		t.Run(name, func(t *testing.T) {
			f, err := NewFolder(owner, name)
			require.NoError(t, err)
			assert.Equal(t, owner.ID, f.MembershipID)
		})
	}

	for _, name := range []string{"", "my loot", "loot!", "mapas-velhos", "ñandú"} {
		t.Run("reject "+name, func(t *testing.T) {
			_, err := NewFolder(owner, name)
			assert.True(t, IsKind(err, KindInvalid))
		})
	}
}

func TestSplitFileName(t *testing.T) {
	tests := []struct {
		in       string
		name     string
		ext      string
		hasError bool
	}{
		{"map.pdf", "map", ".pdf", false},
		{"Map.Final.PDF", "Map.Final", ".pdf", false},
		{"README", "README", "", false},
		{"../../etc/passwd", "passwd", "", false},
		{".pdf", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, ext, err := SplitFileName(tt.in)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestNewItem(t *testing.T) {
	folder, err := NewFolder(activeMembership(t, "t1"), "Loot")
	require.NoError(t, err)

	item, err := NewItem("77", folder, "map.pdf", 128, strPtr("the old map"))
	require.NoError(t, err)
	assert.Equal(t, "map.pdf", item.FileName())
	assert.Equal(t, "items/77.pdf", item.BlobKey)
	assert.Equal(t, folder.ID, item.FolderID)

	_, err = NewItem("78", folder, "map.pdf", 0, nil)
	assert.True(t, IsKind(err, KindInvalid))
}
