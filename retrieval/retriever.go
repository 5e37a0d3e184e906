package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Document 知识库文档
type Document struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// Result 检索结果
type Result struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}

// Retriever is the similarity lookup contract. An empty result is valid.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Result, error)
}

// RetrieverFunc 函数适配器
type RetrieverFunc func(ctx context.Context, query string, topK int) ([]Result, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	return f(ctx, query, topK)
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
	rrfK   = 60
)

type indexedDoc struct {
	doc    Document
	terms  map[string]int
	length int
	title  map[string]bool
	grams  map[string]bool
}

// Handbook is an in-memory hybrid retriever. A BM25 ranker and a
// title/bigram ranker run concurrently and are fused by reciprocal rank.
type Handbook struct {
	docs   []indexedDoc
	df     map[string]int
	avgLen float64
	logger *zap.Logger
}

func NewHandbook(docs []Document, logger *zap.Logger) *Handbook {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handbook{df: make(map[string]int), logger: logger.With(zap.String("component", "handbook_retriever"))}
	total := 0
	for _, d := range docs {
		tokens := tokenize(d.Text)
		idx := indexedDoc{
			doc:    d,
			terms:  make(map[string]int),
			length: len(tokens),
			title:  make(map[string]bool),
			grams:  bigrams(tokens),
		}
		for _, tok := range tokens {
			idx.terms[tok]++
		}
		for _, tok := range tokenize(d.Title) {
			idx.title[tok] = true
		}
		for tok := range idx.terms {
			h.df[tok]++
		}
		total += idx.length
		h.docs = append(h.docs, idx)
	}
	if len(h.docs) > 0 {
		h.avgLen = float64(total) / float64(len(h.docs))
	}
	return h
}

type ranked struct {
	index int
	score float64
}

func (h *Handbook) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	terms := tokenize(query)
	if len(terms) == 0 || len(h.docs) == 0 || topK <= 0 {
		return nil, nil
	}

	var lexical, phrase []ranked
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = h.rankBM25(terms)
		return gctx.Err()
	})
	g.Go(func() error {
		phrase = h.rankPhrase(terms)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := make(map[int]float64)
	for _, list := range [][]ranked{lexical, phrase} {
		for rank, r := range list {
			fused[r.index] += 1.0 / float64(rrfK+rank+1)
		}
	}
	out := make([]Result, 0, len(fused))
	for i, score := range fused {
		d := h.docs[i].doc
		out = append(out, Result{Source: d.Source, Text: d.Text, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Source < out[j].Source
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	h.logger.Debug("retrieved", zap.Int("terms", len(terms)), zap.Int("results", len(out)))
	return out, nil
}

func (h *Handbook) rankBM25(terms []string) []ranked {
	n := float64(len(h.docs))
	var out []ranked
	for i, d := range h.docs {
		score := 0.0
		for _, t := range terms {
			tf := float64(d.terms[t])
			if tf == 0 {
				continue
			}
			df := float64(h.df[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(d.length)/h.avgLen))
			score += idf * norm
		}
		if score > 0 {
			out = append(out, ranked{index: i, score: score})
		}
	}
	sortRanked(out)
	return out
}

func (h *Handbook) rankPhrase(terms []string) []ranked {
	qgrams := bigrams(terms)
	var out []ranked
	for i, d := range h.docs {
		score := 0.0
		for _, t := range terms {
			if d.title[t] {
				score += 2
			}
		}
		for g := range qgrams {
			if d.grams[g] {
				score += 1
			}
		}
		if score > 0 {
			out = append(out, ranked{index: i, score: score})
		}
	}
	sortRanked(out)
	return out
}

func sortRanked(rs []ranked) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].score > rs[j].score })
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "of": true, "to": true,
	"for": true, "in": true, "on": true, "and": true, "or": true, "what": true, "how": true,
	"do": true, "does": true, "i": true, "we": true, "our": true, "my": true, "be": true,
	"can": true, "with": true, "at": true, "by": true, "it": true, "per": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func bigrams(tokens []string) map[string]bool {
	out := make(map[string]bool)
	for i := 0; i+1 < len(tokens); i++ {
		out[tokens[i]+" "+tokens[i+1]] = true
	}
	return out
}
