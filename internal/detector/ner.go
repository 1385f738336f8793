package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/privacyshield/privacyshield/internal/privacy"
	"github.com/privacyshield/privacyshield/internal/scrub"
)

const (
	defaultNERMaxTokens = 256
	minNERMaxTokens     = 8
	defaultNERThreads   = 1
)

// DefaultNERLabels maps common CoNLL and OntoNotes tags to entity types.
var DefaultNERLabels = map[string]privacy.EntityType{
	"PER":    privacy.Person,
	"PERSON": privacy.Person,
	"LOC":    privacy.Location,
	"GPE":    privacy.Location,
	"FAC":    privacy.Location,
	"ORG":    privacy.Organization,
	"NORP":   privacy.NRP,
	"MISC":   privacy.NRP,
	"DATE":   privacy.DateTime,
	"TIME":   privacy.DateTime,
}

// NERConfig locates a token-classification model exported to ONNX.
type NERConfig struct {
	// ModelDir holds model.onnx (or model.int8.onnx), config.json and the
	// tokenizer assets.
	ModelDir string
	// SharedLibrary overrides the onnxruntime library lookup.
	SharedLibrary string
	MaxTokens     int
	Threads       int
	// Sessions is the number of model sessions kept for concurrent calls.
	Sessions int
	// Labels maps model tags (without B-/I- prefixes) to entity types.
	// Tags missing from the map are ignored.
	Labels   map[string]privacy.EntityType
	MinScore float64
	Cased    bool
}

// NER runs a BERT-style token-classification model.
type NER struct {
	tokenizer *WordPieceTokenizer
	tags      []string
	labels    map[string]privacy.EntityType
	seqLen    int
	numLabels int
	minScore  float64
	sessions  chan *nerSession
	closeOnce sync.Once
	modelName string
}

type nerSession struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

// LoadNER initializes onnxruntime and opens cfg.Sessions model sessions.
func LoadNER(cfg NERConfig) (*NER, error) {
	if strings.TrimSpace(cfg.ModelDir) == "" {
		return nil, errors.New("ner: model_dir is empty")
	}
	seqLen := cfg.MaxTokens
	if seqLen <= 0 {
		seqLen = defaultNERMaxTokens
	}
	if seqLen < minNERMaxTokens {
		seqLen = minNERMaxTokens
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = defaultNERThreads
	}
	pool := cfg.Sessions
	if pool <= 0 {
		pool = 1
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = DefaultNERLabels
	}

	modelPath := resolveModelPath(cfg.ModelDir)
	if modelPath == "" {
		return nil, fmt.Errorf("ner: no model.onnx in %s", cfg.ModelDir)
	}
	tok, err := LoadTokenizerFromDir(cfg.ModelDir, !cfg.Cased)
	if err != nil {
		return nil, fmt.Errorf("ner: load tokenizer: %w", err)
	}
	meta, err := loadModelMeta(cfg.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("ner: load config: %w", err)
	}
	if len(meta.Tags) == 0 {
		return nil, errors.New("ner: model config has no id2label")
	}

	lib := cfg.SharedLibrary
	if lib == "" {
		lib = resolveSharedLibraryPath(cfg.ModelDir)
	}
	if lib == "" {
		return nil, errors.New("ner: onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or detectors.ner.shared_library")
	}
	ort.SetSharedLibraryPath(lib)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("ner: initialize onnxruntime: %w", err)
		}
	}

	outputName, err := selectOutputName(modelPath)
	if err != nil {
		return nil, fmt.Errorf("ner: %w", err)
	}

	n := &NER{
		tokenizer: tok,
		tags:      meta.Tags,
		labels:    labels,
		seqLen:    seqLen,
		numLabels: len(meta.Tags),
		minScore:  cfg.MinScore,
		sessions:  make(chan *nerSession, pool),
		modelName: filepath.Base(cfg.ModelDir),
	}
	for i := 0; i < pool; i++ {
		ss, err := newNERSession(modelPath, outputName, seqLen, len(meta.Tags), threads, meta.TokenTypes)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("ner: session %d/%d: %w", i+1, pool, err)
		}
		n.sessions <- ss
	}
	scrub.Logf("ner: loaded %s labels=%d max_tokens=%d sessions=%d", filepath.Base(modelPath), len(meta.Tags), seqLen, pool)
	return n, nil
}

func (n *NER) Name() string { return "ner:" + n.modelName }

// Detect labels every token window of text and returns the decoded
// entities. Confidence is the mean top-label probability of the
// entity's tokens.
func (n *NER) Detect(ctx context.Context, text, language string) ([]privacy.Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var ss *nerSession
	select {
	case ss = <-n.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { n.sessions <- ss }()

	words := splitWordsWithOffsets(text)
	var out []privacy.Span
	for first := 0; first < len(words); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, attn, offsets, next := n.tokenizer.encodeWindow(words, first, n.seqLen)
		copy(ss.inputIDs.GetData(), ids)
		copy(ss.attentionMask.GetData(), attn)
		if ss.tokenTypeIDs != nil {
			clear(ss.tokenTypeIDs.GetData())
		}
		if err := ss.session.Run(); err != nil {
			return nil, fmt.Errorf("onnx run: %w", err)
		}

		tags, probs := argmaxTags(ss.output.GetData(), len(offsets), n.numLabels, n.tags)
		out = append(out, decodeBIO(text, tags, probs, offsets, n.labels, n.Name())...)
		if next <= first {
			break
		}
		first = next
	}

	if n.minScore > 0 {
		kept := out[:0]
		for _, s := range out {
			if s.Confidence >= n.minScore {
				kept = append(kept, s)
			}
		}
		out = kept
	}
	return out, nil
}

// Close releases every session. Calls after the first are no-ops.
func (n *NER) Close() error {
	n.closeOnce.Do(func() {
		for {
			select {
			case ss := <-n.sessions:
				ss.destroy()
			default:
				return
			}
		}
	})
	return nil
}

func (ss *nerSession) destroy() {
	if ss.session != nil {
		ss.session.Destroy()
	}
	ss.inputIDs.Destroy()
	ss.attentionMask.Destroy()
	if ss.tokenTypeIDs != nil {
		ss.tokenTypeIDs.Destroy()
	}
	ss.output.Destroy()
}

// argmaxTags picks the best tag per token from row-major logits.
func argmaxTags(logits []float32, tokens, numLabels int, tags []string) ([]string, []float64) {
	outTags := make([]string, tokens)
	outProbs := make([]float64, tokens)
	for i := 0; i < tokens; i++ {
		base := i * numLabels
		if base+numLabels > len(logits) {
			break
		}
		probs := softmax(logits[base : base+numLabels])
		best := 0
		for j := range probs {
			if probs[j] > probs[best] {
				best = j
			}
		}
		if best < len(tags) {
			outTags[i] = tags[best]
		}
		outProbs[i] = float64(probs[best])
	}
	return outTags, outProbs
}

// decodeBIO groups tagged tokens into entities. A B- tag or a change of
// type starts a new entity; I- continues the current one. Tokens without
// offsets (special tokens, padding) close the current entity.
func decodeBIO(text string, tags []string, probs []float64, offsets []tokenOffset, labels map[string]privacy.EntityType, source string) []privacy.Span {
	var out []privacy.Span
	var cur *privacy.Span
	var sum float64
	var count int

	flush := func() {
		if cur != nil {
			cur.Confidence = sum / float64(count)
			cur.Text = text[cur.Start:cur.End]
			out = append(out, *cur)
			cur = nil
		}
	}

	for i, tag := range tags {
		if i >= len(offsets) {
			break
		}
		off := offsets[i]
		if off.Start < 0 || off.End <= off.Start {
			flush()
			continue
		}
		prefix, typ := splitTag(tag)
		et, ok := labels[strings.ToUpper(typ)]
		if !ok {
			flush()
			continue
		}
		if cur == nil || prefix == "B" || cur.Type != et {
			flush()
			cur = &privacy.Span{Type: et, Start: off.Start, End: off.End, Source: source}
			sum, count = probs[i], 1
			continue
		}
		if off.End > cur.End {
			cur.End = off.End
		}
		sum += probs[i]
		count++
	}
	flush()
	return out
}

func splitTag(tag string) (string, string) {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.EqualFold(tag, "O") {
		return "", ""
	}
	if len(tag) > 2 && (tag[1] == '-' || tag[1] == '_') {
		return strings.ToUpper(tag[:1]), tag[2:]
	}
	return "", tag
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	sum := 0.0
	out := make([]float32, len(logits))
	for i, v := range logits {
		exp := math.Exp(float64(v - maxVal))
		out[i] = float32(exp)
		sum += exp
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

type modelMeta struct {
	Tags       []string
	TokenTypes bool
}

// loadModelMeta reads id2label and type_vocab_size from config.json.
func loadModelMeta(dir string) (modelMeta, error) {
	var meta modelMeta
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return meta, err
	}
	var cfg struct {
		ID2Label      map[string]string `json:"id2label"`
		TypeVocabSize int               `json:"type_vocab_size"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return meta, err
	}
	meta.TokenTypes = cfg.TypeVocabSize > 0

	maxID := -1
	ids := make(map[int]string, len(cfg.ID2Label))
	for k, v := range cfg.ID2Label {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id < 0 {
			return meta, fmt.Errorf("id2label key %q is not an index", k)
		}
		ids[id] = v
		maxID = max(maxID, id)
	}
	if maxID >= 0 {
		meta.Tags = make([]string, maxID+1)
		for id, v := range ids {
			meta.Tags[id] = v
		}
	}
	return meta, nil
}

func resolveModelPath(dir string) string {
	for _, name := range []string{"model.int8.onnx", "model.onnx", filepath.Join("onnx", "model.onnx")} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// resolveSharedLibraryPath locates the onnxruntime library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins over the probed locations.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	names := []string{
		"libonnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.so",
		"onnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

func selectOutputName(modelPath string) (string, error) {
	_, outputs, err := ort.GetInputOutputInfoWithOptions(modelPath, nil)
	if err != nil {
		return "", fmt.Errorf("read model outputs: %w", err)
	}
	for _, out := range outputs {
		if strings.EqualFold(out.Name, "logits") {
			return out.Name, nil
		}
	}
	if len(outputs) == 1 {
		return outputs[0].Name, nil
	}
	return "", fmt.Errorf("model has %d outputs and none is named logits", len(outputs))
}

func newNERSession(modelPath, outputName string, seqLen, numLabels, threads int, tokenTypes bool) (*nerSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set inter threads: %w", err)
	}

	ss := &nerSession{}
	inputShape := ort.NewShape(1, int64(seqLen))
	if ss.inputIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		return nil, fmt.Errorf("allocate input_ids: %w", err)
	}
	if ss.attentionMask, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		ss.inputIDs.Destroy()
		return nil, fmt.Errorf("allocate attention_mask: %w", err)
	}
	inputNames := []string{"input_ids", "attention_mask"}
	inputs := []ort.Value{ss.inputIDs, ss.attentionMask}
	if tokenTypes {
		if ss.tokenTypeIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
			ss.inputIDs.Destroy()
			ss.attentionMask.Destroy()
			return nil, fmt.Errorf("allocate token_type_ids: %w", err)
		}
		inputNames = append(inputNames, "token_type_ids")
		inputs = append(inputs, ss.tokenTypeIDs)
	}
	if ss.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(seqLen), int64(numLabels))); err != nil {
		ss.destroyInputs()
		return nil, fmt.Errorf("allocate logits: %w", err)
	}

	ss.session, err = ort.NewAdvancedSession(modelPath, inputNames, []string{outputName}, inputs, []ort.Value{ss.output}, opts)
	if err != nil {
		ss.destroyInputs()
		ss.output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return ss, nil
}

func (ss *nerSession) destroyInputs() {
	ss.inputIDs.Destroy()
	ss.attentionMask.Destroy()
	if ss.tokenTypeIDs != nil {
		ss.tokenTypeIDs.Destroy()
	}
}
