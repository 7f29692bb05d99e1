package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathToRef(t *testing.T) {
	ref, err := PathToRef[user]("users/1")
	require.NoError(t, err)
	assert.Equal(t, NewRef(NewCollection[user]("users"), "1"), ref)

	_, err = PathToRef[user]("users")
	assert.Error(t, err)
}

func TestRef_AssignPath(t *testing.T) {
	var ref Ref[post]
	var assigner PathAssigner = &ref
	require.NoError(t, assigner.AssignPath("users/1/posts/9"))
	assert.Equal(t, "users/1/posts/9", ref.Path())

	assert.Error(t, assigner.AssignPath("users/1/posts"))
}

func TestCast(t *testing.T) {
	var anyRef Reference = NewCollection[any]("users").Ref("1")
	typed := Cast[user](anyRef)
	assert.Equal(t, NewCollection[user]("users").Ref("1"), typed)
}

func TestDoc_ActsAsCursorValue(t *testing.T) {
	now := time.Now()
	doc := NewDoc(NewCollection[user]("users").Ref("1"), user{Name: "Sasha"}, DocMeta{ReadTime: now})

	var cursor DocValue = doc
	assert.Equal(t, "1", cursor.DocID())
	assert.Equal(t, user{Name: "Sasha"}, cursor.DocData())
	assert.Equal(t, now, doc.Meta.ReadTime)
}
