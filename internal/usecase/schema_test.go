package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childlens/bmnprep/internal/domain/entity"
)

var testLabels = NewLabelSet([]string{"reading", "playing", "drawing"})

const superAnnotateDoc1 = `{
	"metadata": {"name": "119281.MP4", "duration": 60000000},
	"instances": [
		{
			"meta": {"start": 1500000, "end": 4000000, "className": "Activity"},
			"parameters": [
				{"timestamps": [{"attributes": [{"name": "unknown"}, {"name": "playing"}]}, {"attributes": [{"name": "reading"}]}]},
				{"timestamps": [{"attributes": []}, {"attributes": [{"name": "drawing"}]}]},
				{"timestamps": [{"attributes": [{"name": "drawing"}]}]}
			]
		},
		{
			"meta": {"start": 0, "end": 1000000, "className": "Location"},
			"parameters": [{"timestamps": [{"attributes": [{"name": "reading"}]}]}]
		},
		{
			"meta": {"start": 5000000, "end": 6000000, "className": "Activity"},
			"parameters": [{"timestamps": [{"attributes": [{"name": "sleeping"}]}]}]
		}
	]
}`

func TestSuperAnnotateParser(t *testing.T) {
	p, err := ParserFor(FormatSuperAnnotate)
	require.NoError(t, err)

	videos, err := p.Parse([]byte(superAnnotateDoc1), testLabels)
	require.NoError(t, err)
	require.Len(t, videos, 1)

	v := videos[0]
	assert.Equal(t, "119281", v.ID)
	assert.Equal(t, 60.0, v.DurationSeconds)
	assert.Equal(t, []entity.Segment{
		{Start: 1.5, End: 4, Label: "playing"},
		{Start: 1.5, End: 4, Label: "drawing"},
	}, v.Segments)
}

func TestSuperAnnotateParserRejectsUnnamed(t *testing.T) {
	_, err := superAnnotateParser{}.Parse([]byte(`{"metadata": {"duration": 1}}`), testLabels)
	assert.Error(t, err)

	_, err = superAnnotateParser{}.Parse([]byte(`{`), testLabels)
	assert.Error(t, err)
}

func TestSegmentsParser(t *testing.T) {
	doc := `{
		"b": {"duration_second": 20, "duration_frame": 600, "fps": 30, "annotations": [{"segment": [1, 2], "label": "reading"}, {"segment": [3, 4], "label": "other"}]},
		"a": {"duration_second": 10, "annotations": [{"segment": [1], "label": "reading"}]}
	}`
	videos, err := segmentsParser{}.Parse([]byte(doc), testLabels)
	require.NoError(t, err)
	require.Len(t, videos, 2)

	assert.Equal(t, "a", videos[0].ID)
	assert.Empty(t, videos[0].Segments)
	assert.Equal(t, "b", videos[1].ID)
	assert.Equal(t, 600, videos[1].DurationFrames)
	assert.Equal(t, 30.0, videos[1].FPS)
	assert.Equal(t, []entity.Segment{{Start: 1, End: 2, Label: "reading"}}, videos[1].Segments)
}

func TestActivityNetParser(t *testing.T) {
	doc := `{"database": {"v1": {"duration": 12.5, "subset": "testing", "annotations": [{"segment": [0.5, 3], "label": "drawing"}]}}}`
	videos, err := activityNetParser{}.Parse([]byte(doc), testLabels)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, RawVideo{
		ID:              "v1",
		DurationSeconds: 12.5,
		Segments:        []entity.Segment{{Start: 0.5, End: 3, Label: "drawing"}},
	}, videos[0])
}

func TestParserForUnknownFormat(t *testing.T) {
	_, err := ParserFor("coco")
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrConfiguration))
}

func TestLabelSet(t *testing.T) {
	ls := NewLabelSet([]string{"a", "b", "a"})
	i, ok := ls.Index("a")
	assert.True(t, ok)
	assert.Equal(t, 0, i)
	i, ok = ls.Index("b")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = ls.Index("c")
	assert.False(t, ok)

	got, ok := ls.FirstMatch([]string{"x", "b", "a"})
	assert.True(t, ok)
	assert.Equal(t, "b", got)
}
