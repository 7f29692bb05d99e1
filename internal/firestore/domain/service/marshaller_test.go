package service

import (
	"math"
	"testing"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	Name string `firestore:"name"`
}

type audit struct {
	CreatedBy string `firestore:"createdBy"`
}

type post struct {
	audit
	Title     string              `firestore:"title"`
	Author    model.Ref[author]   `firestore:"author"`
	Tags      []string            `firestore:"tags,omitempty"`
	Views     int                 `firestore:"views"`
	Score     float64             `firestore:"score"`
	Published *time.Time          `firestore:"published"`
	UpdatedAt time.Time           `firestore:"updatedAt,serverTimestamp"`
	Meta      map[string]any      `firestore:"meta,omitempty"`
	Internal  string              `firestore:"-"`
	Extra     model.Data          `firestore:"extra,omitempty"`
	Reviewers []model.Ref[author] `firestore:"reviewers,omitempty"`
	Ratings   map[string]int      `firestore:"ratings,omitempty"`
	private   string
}

func neutral() *Marshaller {
	return NewMarshaller(repository.NeutralCodec{})
}

func TestUnwrapStruct(t *testing.T) {
	m := neutral()
	authors := model.NewCollection[author]("authors")
	published := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	out, err := m.UnwrapDocument(post{
		audit:     audit{CreatedBy: "sasha"},
		Title:     "Hello",
		Author:    authors.Ref("a1"),
		Views:     3,
		Score:     4.5,
		Published: &published,
		Internal:  "hidden",
		private:   "x",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", out["title"])
	assert.Equal(t, repository.RefValue{Path: "authors/a1"}, out["author"])
	assert.Equal(t, int64(3), out["views"])
	assert.Equal(t, 4.5, out["score"])
	assert.Equal(t, published.UTC(), out["published"])
	assert.Equal(t, repository.Transform{Kind: model.KindServerDate}, out["updatedAt"])
	assert.NotContains(t, out, "tags")
	assert.NotContains(t, out, "Internal")
	assert.NotContains(t, out, "private")
	// unexported embedded structs are skipped
	assert.NotContains(t, out, "createdBy")
}

type Stamped struct {
	CreatedBy string `firestore:"createdBy"`
}

type stampedPost struct {
	Stamped
	Title string `firestore:"title"`
}

func TestUnwrapFlattensExportedEmbeds(t *testing.T) {
	out, err := neutral().UnwrapDocument(stampedPost{Stamped: Stamped{CreatedBy: "kim"}, Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"createdBy": "kim", "title": "t"}, out)
}

func TestUnwrapServerTimestampKeepsSetValue(t *testing.T) {
	at := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out, err := neutral().UnwrapDocument(post{UpdatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, at, out["updatedAt"])
}

func TestUnwrapSentinels(t *testing.T) {
	m := neutral()
	users := model.NewCollection[author]("users")

	out, err := m.UnwrapDocument(model.Data{
		"gone":    model.Remove(),
		"count":   model.Increment(2),
		"ratio":   model.Increment(float32(0.5)),
		"tags":    model.ArrayUnion("a", users.Ref("u1")),
		"removed": model.ArrayRemove(1),
		"at":      model.ServerDate(),
		"nested":  map[string]any{"deep": model.Increment(uint8(1))},
		"nothing": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, repository.Transform{Kind: model.KindRemove}, out["gone"])
	assert.Equal(t, repository.Transform{Kind: model.KindIncrement, Number: int64(2)}, out["count"])
	assert.Equal(t, repository.Transform{Kind: model.KindIncrement, Number: 0.5}, out["ratio"])
	assert.Equal(t, repository.Transform{
		Kind:   model.KindArrayUnion,
		Values: []any{"a", repository.RefValue{Path: "users/u1"}},
	}, out["tags"])
	assert.Equal(t, repository.Transform{Kind: model.KindArrayRemove, Values: []any{int64(1)}}, out["removed"])
	assert.Equal(t, repository.Transform{Kind: model.KindServerDate}, out["at"])
	assert.Equal(t, map[string]any{
		"deep": repository.Transform{Kind: model.KindIncrement, Number: int64(1)},
	}, out["nested"])
	assert.Nil(t, out["nothing"])
	assert.Contains(t, out, "nothing")
}

func TestUnwrapRejectsUnsupportedValues(t *testing.T) {
	m := neutral()

	_, err := m.Unwrap(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ch")

	_, err = m.Unwrap(map[int]string{1: "a"})
	require.Error(t, err)

	_, err = m.UnwrapDocument("plain string")
	require.Error(t, err)
}

func TestUnwrapUnsignedRange(t *testing.T) {
	m := neutral()

	out, err := m.Unwrap(uint64(math.MaxInt64))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), out)

	_, err = m.UnwrapDocument(map[string]any{"big": uint64(1) << 63})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedValue)
	assert.Contains(t, err.Error(), "big")

	_, err = m.Unwrap(^uint64(0))
	assert.ErrorIs(t, err, errors.ErrUnsupportedValue)
}

func TestUnwrapReplacementRejectsRemove(t *testing.T) {
	m := neutral()
	body := map[string]any{"meta": map[string]any{"note": model.Remove()}, "n": model.Increment(1)}

	out, err := m.UnwrapDocument(body)
	require.NoError(t, err)
	assert.Equal(t, repository.Transform{Kind: model.KindRemove}, out["meta"].(map[string]any)["note"])

	_, err = m.UnwrapReplacement(body)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedValue)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "note")

	out, err = m.UnwrapReplacement(map[string]any{"n": model.Increment(1)})
	require.NoError(t, err)
	assert.Equal(t, repository.Transform{Kind: model.KindIncrement, Number: int64(1)}, out["n"])
}

func TestUnwrapNilPointers(t *testing.T) {
	m := neutral()
	var ref *model.Ref[author]
	var ts *time.Time

	out, err := m.UnwrapDocument(map[string]any{"ref": ref, "ts": ts, "slice": []string(nil)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ref": nil, "ts": nil, "slice": nil}, out)

	doc, err := m.UnwrapDocument(nil)
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestWrapRoundTripsPlainValues(t *testing.T) {
	m := neutral()
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	ref := model.NewCollection[author]("users").Ref("u1")

	in := map[string]any{
		"s":    "x",
		"n":    int64(1),
		"f":    1.5,
		"b":    true,
		"at":   at,
		"ref":  ref,
		"list": []any{"a", map[string]any{"k": at}},
		"raw":  []byte("hi"),
	}
	wire, err := m.UnwrapDocument(in)
	require.NoError(t, err)

	back := m.WrapDocument(wire)
	assert.Equal(t, "x", back["s"])
	assert.Equal(t, at, back["at"])
	assert.Equal(t, []byte("hi"), back["raw"])
	assert.Equal(t, model.Ref[any]{Collection: model.NewCollection[any]("users"), ID: "u1"}, back["ref"])
	assert.Equal(t, []any{"a", map[string]any{"k": at}}, back["list"])
}

func TestDecode(t *testing.T) {
	m := neutral()
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	wire := map[string]any{
		"title":     "Hello",
		"author":    repository.RefValue{Path: "authors/a1"},
		"tags":      []any{"go", "db"},
		"views":     int64(7),
		"score":     2.5,
		"published": at,
		"updatedAt": at,
		"reviewers": []any{repository.RefValue{Path: "authors/a2"}},
		"ratings":   map[string]any{"five": int64(5)},
		"extra":     map[string]any{"any": "thing"},
	}

	got, err := Decode[post](m, wire)
	require.NoError(t, err)

	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, model.NewCollection[author]("authors").Ref("a1"), got.Author)
	assert.Equal(t, []string{"go", "db"}, got.Tags)
	assert.Equal(t, 7, got.Views)
	assert.Equal(t, 2.5, got.Score)
	require.NotNil(t, got.Published)
	assert.Equal(t, at, *got.Published)
	assert.Equal(t, at, got.UpdatedAt)
	require.Len(t, got.Reviewers, 1)
	assert.Equal(t, "authors/a2", got.Reviewers[0].Path())
	assert.Equal(t, map[string]int{"five": 5}, got.Ratings)
	assert.Equal(t, model.Data{"any": "thing"}, got.Extra)
}

func TestDecodeIntoMap(t *testing.T) {
	m := neutral()
	got, err := Decode[map[string]any](m, map[string]any{"ref": repository.RefValue{Path: "a/1"}})
	require.NoError(t, err)
	ref, ok := got["ref"].(model.Reference)
	require.True(t, ok)
	assert.Equal(t, "a/1", ref.Path())
}
