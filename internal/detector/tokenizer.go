package detector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WordPieceTokenizer is a BERT-style tokenizer that keeps the byte
// offsets of every piece so token labels can be mapped back to text.
type WordPieceTokenizer struct {
	vocab        map[string]int64
	lowerCase    bool
	clsID        int64
	sepID        int64
	padID        int64
	unkID        int64
	continuation string
}

type tokenOffset struct {
	Start int
	End   int
}

var noOffset = tokenOffset{Start: -1, End: -1}

type wordSpan struct {
	Text  string
	Start int
	End   int
}

type pieceOffset struct {
	id    int64
	start int
	end   int
}

// LoadWordPieceTokenizer reads a vocab.txt file, one token per line.
func LoadWordPieceTokenizer(path string, lowerCase bool) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token != "" {
			vocab[token] = idx
		}
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	return NewWordPieceTokenizer(vocab, lowerCase), nil
}

// NewWordPieceTokenizer builds a tokenizer over an in-memory vocabulary.
func NewWordPieceTokenizer(vocab map[string]int64, lowerCase bool) *WordPieceTokenizer {
	return &WordPieceTokenizer{
		vocab:        vocab,
		lowerCase:    lowerCase,
		continuation: "##",
		clsID:        vocab["[CLS]"],
		sepID:        vocab["[SEP]"],
		padID:        vocab["[PAD]"],
		unkID:        vocab["[UNK]"],
	}
}

// LoadTokenizerFromDir loads vocab.txt, or the WordPiece vocabulary of a
// tokenizer.json, from dir.
func LoadTokenizerFromDir(dir string, lowerCase bool) (*WordPieceTokenizer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("tokenizer dir is empty")
	}
	for _, path := range []string{
		filepath.Join(dir, "vocab.txt"),
		filepath.Join(dir, "tokenizer", "vocab.txt"),
	} {
		if _, err := os.Stat(path); err == nil {
			return LoadWordPieceTokenizer(path, lowerCase)
		}
	}
	for _, path := range []string{
		filepath.Join(dir, "tokenizer.json"),
		filepath.Join(dir, "tokenizer", "tokenizer.json"),
	} {
		if _, err := os.Stat(path); err == nil {
			return loadTokenizerJSON(path, lowerCase)
		}
	}
	return nil, fmt.Errorf("tokenizer assets not found in %s (vocab.txt or tokenizer.json)", dir)
}

func loadTokenizerJSON(path string, lowerCase bool) (*WordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer.json: %w", err)
	}
	var raw struct {
		Model struct {
			Type  string           `json:"type"`
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode tokenizer.json: %w", err)
	}
	if t := strings.ToLower(raw.Model.Type); t != "" && t != "wordpiece" {
		return nil, fmt.Errorf("tokenizer.json: unsupported model type %q", raw.Model.Type)
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json missing vocab")
	}
	return NewWordPieceTokenizer(raw.Model.Vocab, lowerCase), nil
}

// encodeWindow tokenizes words[first:] into one model input of seqLen
// tokens. It returns the ids, attention mask, per-token byte offsets and
// the index of the first word that did not fit, or len(words).
func (t *WordPieceTokenizer) encodeWindow(words []wordSpan, first, seqLen int) ([]int64, []int64, []tokenOffset, int) {
	ids := make([]int64, 0, seqLen)
	offsets := make([]tokenOffset, 0, seqLen)
	ids = append(ids, t.clsID)
	offsets = append(offsets, noOffset)

	budget := seqLen - 1
	next := len(words)
	for i := first; i < len(words); i++ {
		w := words[i]
		pieces := t.pieces(w.Text)
		if len(ids)+len(pieces) > budget {
			next = i
			if len(ids) == 1 {
				// A single word longer than the window keeps its head.
				pieces = pieces[:budget-1]
				next = i + 1
			} else {
				break
			}
		}
		for _, p := range pieces {
			ids = append(ids, p.id)
			offsets = append(offsets, tokenOffset{Start: w.Start + p.start, End: w.Start + p.end})
		}
		if next != len(words) {
			break
		}
	}
	ids = append(ids, t.sepID)
	offsets = append(offsets, noOffset)

	attn := make([]int64, seqLen)
	for i := range ids {
		attn[i] = 1
	}
	for len(ids) < seqLen {
		ids = append(ids, t.padID)
		offsets = append(offsets, noOffset)
	}
	return ids, attn, offsets, next
}

func (t *WordPieceTokenizer) pieces(word string) []pieceOffset {
	token := word
	if t.lowerCase {
		if lower := strings.ToLower(word); len(lower) == len(word) {
			token = lower
		}
	}
	if id, ok := t.vocab[token]; ok {
		return []pieceOffset{{id: id, start: 0, end: len(token)}}
	}

	var out []pieceOffset
	start := 0
	for start < len(token) {
		end := len(token)
		found := false
		for end > start {
			sub := token[start:end]
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				out = append(out, pieceOffset{id: id, start: start, end: end})
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return []pieceOffset{{id: t.unkID, start: 0, end: len(token)}}
		}
	}
	return out
}

// splitWordsWithOffsets splits on whitespace and isolates punctuation,
// the way BERT's basic tokenizer does.
func splitWordsWithOffsets(text string) []wordSpan {
	var spans []wordSpan
	start := -1
	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, wordSpan{Text: text[start:end], Start: start, End: end})
			start = -1
		}
	}
	for idx, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(idx)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush(idx)
			_, size := utf8.DecodeRuneInString(text[idx:])
			end := idx + size
			spans = append(spans, wordSpan{Text: text[idx:end], Start: idx, End: end})
		default:
			if start < 0 {
				start = idx
			}
		}
	}
	flush(len(text))
	return spans
}
