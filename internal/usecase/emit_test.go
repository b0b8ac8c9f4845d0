package usecase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childlens/bmnprep/internal/domain/entity"
	"github.com/childlens/bmnprep/internal/infra/featureio"
	"github.com/childlens/bmnprep/internal/infra/fsstore"
)

func newTestEmitter(t *testing.T) (*Emitter, string) {
	t.Helper()
	root := t.TempDir()
	store, err := fsstore.New(root)
	require.NoError(t, err)
	return NewEmitter(store, OutputLayout{SplitDir: "annotations", ListDir: "lists", FeatureDir: "features"}), root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func emitRecords() []entity.VideoRecord {
	seg := []entity.Segment{{Start: 1, End: 2, Label: "reading"}}
	return []entity.VideoRecord{
		{ID: "c", DurationSeconds: 4, DurationFrames: 120, FPS: 30, RealFPS: 29.97, Subset: entity.SubsetValidation, Segments: seg},
		{ID: "a", DurationSeconds: 10, DurationFrames: 300, FPS: 30, RealFPS: 30, Subset: entity.SubsetTraining, Segments: seg},
		{ID: "b", DurationSeconds: 2.5, DurationFrames: 75, FPS: 30, RealFPS: 30, Subset: entity.SubsetTesting, Segments: seg},
		{ID: "d", DurationSeconds: 3, DurationFrames: 90, FPS: 30, RealFPS: 30},
	}
}

func TestWriteSplitAnnotations(t *testing.T) {
	e, root := newTestEmitter(t)
	require.NoError(t, e.WriteSplitAnnotations(context.Background(), emitRecords()))

	var train map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(root, "annotations", "anno_train.json"))), &train))
	require.Contains(t, train, "a")
	assert.Len(t, train, 1)
	assert.Equal(t, 30.0, train["a"]["rfps"])
	assert.Equal(t, 300.0, train["a"]["duration_frame"])

	var val map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(root, "annotations", "anno_val.json"))), &val))
	assert.Equal(t, 29.97, val["c"]["rfps"])

	var full map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(root, "annotations", "anno_full.json"))), &full))
	assert.Len(t, full, 3)
	assert.NotContains(t, full, "d")
}

func TestWriteCombinedAnnotationsKeepsEmptyVideos(t *testing.T) {
	e, root := newTestEmitter(t)
	require.NoError(t, e.WriteCombinedAnnotations(context.Background(), emitRecords()))

	var doc map[string]struct {
		Annotations []any `json:"annotations"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(root, "annotations", CombinedAnnotationsName))), &doc))
	require.Contains(t, doc, "d")
	assert.NotNil(t, doc["d"].Annotations)
	assert.Empty(t, doc["d"].Annotations)
}

func TestWriteVideoInfo(t *testing.T) {
	e, root := newTestEmitter(t)
	require.NoError(t, e.WriteVideoInfo(context.Background(), emitRecords()))

	assert.Equal(t,
		"video,numFrame,seconds,fps,rfps,subset,featureFrame\n"+
			"a,300,10,30,30,training,300\n"+
			"b,75,2.5,30,30,testing,75\n"+
			"c,120,4,30,29.97,validation,120\n",
		readFile(t, filepath.Join(root, "annotations", VideoInfoName)))
}

func TestWriteLists(t *testing.T) {
	e, root := newTestEmitter(t)
	ctx := context.Background()

	require.NoError(t, e.WriteVideoLists(ctx, map[entity.Subset][]entity.VideoListEntry{
		entity.SubsetTraining: {{DirName: "a", NumFrames: 300, LabelIndex: 0}, {DirName: "b_01", NumFrames: 120, LabelIndex: 2}},
	}))
	require.NoError(t, e.WriteClipLists(ctx, map[entity.Subset][]entity.ClipRecord{
		entity.SubsetTraining:   {{DirName: "a", StartFrame: 30, DurationFrames: 46, LabelIndex: 1}},
		entity.SubsetValidation: {{DirName: "c", StartFrame: 0, DurationFrames: 5, LabelIndex: 0}, {DirName: "c", StartFrame: 9, DurationFrames: 1, LabelIndex: 2}},
	}))

	assert.Equal(t, "a 300 0\nb_01 120 2", readFile(t, filepath.Join(root, "lists", "train_video.txt")))
	assert.Equal(t, "", readFile(t, filepath.Join(root, "lists", "val_video.txt")))
	assert.Equal(t, "a 30 46 1", readFile(t, filepath.Join(root, "lists", "train_clip.txt")))
	assert.Equal(t, "c 0 5 0\nc 9 1 2", readFile(t, filepath.Join(root, "lists", "val_clip.txt")))
}

func TestWriteFeature(t *testing.T) {
	e, root := newTestEmitter(t)
	f := entity.ResampledFeature{VideoID: "a", Rows: [][]float64{{1, 2}, {3, 4}}}
	require.NoError(t, e.WriteFeature(context.Background(), featureio.CSV{}, f))
	assert.Equal(t, "features/a.csv", e.FeatureName("a", featureio.CSV{}))
	assert.Equal(t, "f0,f1\n1.0000,2.0000\n3.0000,4.0000", readFile(t, filepath.Join(root, "features", "a.csv")))
}

func TestWriteReport(t *testing.T) {
	e, root := newTestEmitter(t)
	r := NewReport("run-1")
	r.Add("videos_normalized", 3)
	require.NoError(t, e.WriteReport(context.Background(), r))

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, filepath.Join(root, ReportName))), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, map[string]any{"videos_normalized": 3.0}, got["counts"])
}
