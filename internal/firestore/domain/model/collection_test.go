package model

import (
	"errors"
	"testing"

	apperrors "firestore-typed/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	Name string `firestore:"name"`
}

type post struct {
	Title string `firestore:"title"`
}

type comment struct {
	Text string `firestore:"text"`
}

func TestCollection_Basics(t *testing.T) {
	users := NewCollection[user]("/users/")
	assert.Equal(t, "users", users.Path)
	assert.Equal(t, "users", users.ID())
	assert.Equal(t, Source{Path: "users"}, users.Source())
	assert.NoError(t, users.Validate())

	ref := users.Ref("sasha")
	assert.Equal(t, "users/sasha", ref.Path())
	assert.Equal(t, users, ref.Collection)
}

func TestCollection_ValidateRejectsDocumentPath(t *testing.T) {
	err := NewCollection[user]("users/1").Validate()
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPath))
}

func TestCollection_RefFor(t *testing.T) {
	posts := NewCollection[post]("users/1/posts")
	ref, err := posts.RefFor("users/1/posts/2")
	require.NoError(t, err)
	assert.Equal(t, posts.Ref("2"), ref)
}

func TestCollectionGroup_RefForRebuildsParent(t *testing.T) {
	group := NewGroup[post]("posts")
	assert.Equal(t, Source{Path: "posts", Group: true}, group.Source())

	ref, err := group.RefFor("projects/p/databases/(default)/documents/users/7/posts/2")
	require.NoError(t, err)
	assert.Equal(t, "users/7/posts", ref.Collection.Path)
	assert.Equal(t, "2", ref.ID)
}

func TestSubcollection(t *testing.T) {
	users := NewCollection[user]("users")
	posts := NewSubcollection[post]("posts", users)
	comments := NestSubcollection[comment]("comments", posts)

	assert.Equal(t, "users/1/posts", posts.Of(users.Ref("1")).Path)

	byID, err := posts.OfID("1")
	require.NoError(t, err)
	assert.Equal(t, "users/1/posts", byID.Path)

	nested, err := comments.OfID("1", "2")
	require.NoError(t, err)
	assert.Equal(t, "users/1/posts/2/comments", nested.Path)

	postRef := byID.Ref("2")
	assert.Equal(t, nested, comments.Of(postRef))

	_, err = comments.OfID("1")
	assert.Error(t, err)

	assert.Equal(t, CollectionGroup[comment]{ID: "comments"}, comments.Group())
	assert.Equal(t, "comments", comments.Name())
}
