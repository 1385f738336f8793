package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

func TestDecodeBIO(t *testing.T) {
	text := "John Doe lives in Pune"
	tags := []string{"", "B-PER", "I-PER", "O", "O", "B-LOC", ""}
	probs := []float64{0, 0.9, 0.7, 1, 1, 0.8, 0}
	offsets := []tokenOffset{
		noOffset,
		{Start: 0, End: 4},
		{Start: 5, End: 8},
		{Start: 9, End: 14},
		{Start: 15, End: 17},
		{Start: 18, End: 22},
		noOffset,
	}

	got := decodeBIO(text, tags, probs, offsets, DefaultNERLabels, "ner:test")
	require.Len(t, got, 2)

	assert.Equal(t, privacy.Person, got[0].Type)
	assert.Equal(t, "John Doe", got[0].Text)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-9)
	assert.Equal(t, "ner:test", got[0].Source)

	assert.Equal(t, privacy.Location, got[1].Type)
	assert.Equal(t, "Pune", got[1].Text)
	assert.InDelta(t, 0.8, got[1].Confidence, 1e-9)
}

func TestDecodeBIOBoundaries(t *testing.T) {
	text := "Ann Bo Acme"
	offsets := []tokenOffset{{Start: 0, End: 3}, {Start: 4, End: 6}, {Start: 7, End: 11}}
	probs := []float64{1, 1, 1}

	// A fresh B- tag splits adjacent entities of one type.
	got := decodeBIO(text, []string{"B-PER", "B-PER", "I-ORG"}, probs, offsets, DefaultNERLabels, "")
	require.Len(t, got, 3)
	assert.Equal(t, "Ann", got[0].Text)
	assert.Equal(t, "Bo", got[1].Text)
	assert.Equal(t, privacy.Organization, got[2].Type)

	// Tags outside the label map close the current entity.
	got = decodeBIO(text, []string{"B-PER", "I-XYZ", "I-PER"}, probs, offsets, DefaultNERLabels, "")
	require.Len(t, got, 2)
	assert.Equal(t, "Ann", got[0].Text)
	assert.Equal(t, "Acme", got[1].Text)
}

func TestDecodeBIOSubwords(t *testing.T) {
	text := "Priyanka"
	offsets := []tokenOffset{{Start: 0, End: 4}, {Start: 4, End: 8}}
	got := decodeBIO(text, []string{"B-PER", "I-PER"}, []float64{0.6, 1}, offsets, DefaultNERLabels, "")
	require.Len(t, got, 1)
	assert.Equal(t, "Priyanka", got[0].Text)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-9)
}

func TestArgmaxTags(t *testing.T) {
	logits := []float32{
		5, 0, 0,
		0, 4, 1,
	}
	tags, probs := argmaxTags(logits, 2, 3, []string{"O", "B-PER", "I-PER"})
	assert.Equal(t, []string{"O", "B-PER"}, tags)
	assert.Greater(t, probs[0], 0.9)
	assert.Greater(t, probs[1], 0.5)
}

func TestSoftmax(t *testing.T) {
	out := softmax([]float32{1, 2, 3})
	var sum float64
	for _, v := range out {
		sum += float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Greater(t, out[2], out[1])
	assert.Nil(t, softmax(nil))
}

func TestLoadModelMeta(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"id2label":{"0":"O","2":"I-PER","1":"B-PER"},"type_vocab_size":2}`), 0o644))

	meta, err := loadModelMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "B-PER", "I-PER"}, meta.Tags)
	assert.True(t, meta.TokenTypes)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"id2label":{"first":"O"}}`), 0o644))
	_, err = loadModelMeta(dir)
	assert.ErrorContains(t, err, "not an index")
}

func TestLoadNERErrors(t *testing.T) {
	_, err := LoadNER(NERConfig{})
	assert.ErrorContains(t, err, "model_dir is empty")

	_, err = LoadNER(NERConfig{ModelDir: t.TempDir()})
	assert.ErrorContains(t, err, "no model.onnx")
}

func TestResolveSharedLibraryPath(t *testing.T) {
	t.Setenv("ONNXRUNTIME_SHARED_LIBRARY_PATH", "/opt/ort/libonnxruntime.so")
	assert.Equal(t, "/opt/ort/libonnxruntime.so", resolveSharedLibraryPath(t.TempDir()))

	t.Setenv("ONNXRUNTIME_SHARED_LIBRARY_PATH", "")
	dir := t.TempDir()
	lib := filepath.Join(dir, "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, nil, 0o644))
	assert.Equal(t, lib, resolveSharedLibraryPath(dir))
}

func TestSplitTag(t *testing.T) {
	p, typ := splitTag("B-PER")
	assert.Equal(t, "B", p)
	assert.Equal(t, "PER", typ)

	p, typ = splitTag("i_loc")
	assert.Equal(t, "I", p)
	assert.Equal(t, "loc", typ)

	_, typ = splitTag("O")
	assert.Empty(t, typ)

	p, typ = splitTag("PER")
	assert.Empty(t, p)
	assert.Equal(t, "PER", typ)
}
