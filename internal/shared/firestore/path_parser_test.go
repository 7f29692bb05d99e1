package firestore

import (
	"errors"
	"strings"
	"testing"

	apperrors "firestore-typed/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath_FullyQualified(t *testing.T) {
	info, err := ParsePath("projects/proj1/databases/(default)/documents/col1/doc1")
	require.NoError(t, err)
	assert.Equal(t, "proj1", info.ProjectID)
	assert.Equal(t, "(default)", info.DatabaseID)
	assert.Equal(t, "col1/doc1", info.DocumentPath)
	assert.True(t, info.IsDocument)
	assert.False(t, info.IsCollection)
	assert.Equal(t, []string{"col1", "doc1"}, info.Segments)
}

func TestParsePath_Relative(t *testing.T) {
	info, err := ParsePath("/users/1/posts/")
	require.NoError(t, err)
	assert.Equal(t, "users/1/posts", info.DocumentPath)
	assert.True(t, info.IsCollection)
	assert.Empty(t, info.ProjectID)
}

func TestParsePath_Invalid(t *testing.T) {
	_, err := ParsePath("")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPath))

	_, err = ParsePath("users/__id__")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPath))
}

func TestValidateID(t *testing.T) {
	assert.True(t, IsValidID("abc-123_X"))
	assert.True(t, IsValidID("a@b"))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID(".."))
	assert.False(t, IsValidID("__name__"))
	assert.False(t, IsValidID(strings.Repeat("x", maxIDBytes+1)))
}

func TestIsDocumentPath_IsCollectionPath(t *testing.T) {
	assert.True(t, IsDocumentPath("col1/doc1"))
	assert.False(t, IsDocumentPath("col1"))
	assert.True(t, IsCollectionPath("col1"))
	assert.False(t, IsCollectionPath("col1/doc1"))
	assert.True(t, IsDocumentPath("projects/p/databases/d/documents/a/b"))
}

func TestSplitDocumentPath(t *testing.T) {
	col, id, err := SplitDocumentPath("users/1/posts/2")
	require.NoError(t, err)
	assert.Equal(t, "users/1/posts", col)
	assert.Equal(t, "2", id)

	_, _, err = SplitDocumentPath("users")
	assert.Error(t, err)
}

func TestRelativeAndCollectionID(t *testing.T) {
	assert.Equal(t, "a/b", Relative("projects/p/databases/d/documents/a/b"))
	assert.Equal(t, "a/b", Relative("a/b"))
	assert.Equal(t, "posts", CollectionID("users/1/posts"))
	assert.Equal(t, "", CollectionID(""))
	assert.Equal(t, "projects/p/databases/d/documents/a/b", BuildFirestorePath("p", "d", BuildDocumentPath("a", "b")))
}

func TestAutoID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := AutoID()
		assert.Len(t, id, 20)
		assert.True(t, IsValidID(id))
		assert.False(t, seen[id])
		seen[id] = true
	}
}
