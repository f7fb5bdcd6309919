// Package search narrows a candidate list with a throwaway in-memory bleve index.
package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	log "github.com/sirupsen/logrus"

	"go-canvas-download/internal/helpers"
	"go-canvas-download/internal/models"
)

// Fields searched for every term token.
var fields = []string{"title", "filename", "label"}

// newMapping indexes each field as a single lowercased keyword so wildcard
// queries behave like substring matches over the whole value.
func newMapping() mapping.IndexMapping {
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	kw.Store = false
	kw.IncludeTermVectors = false

	doc := bleve.NewDocumentMapping()
	for _, f := range fields {
		doc.AddFieldMappingsAt(f, kw)
	}

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = keyword.Name
	return m
}

// Filter returns the candidates whose title, filename or type label contains
// every whitespace-separated token of term, case-insensitively. Input order
// is preserved. An empty term returns files unchanged.
func Filter(files []models.CandidateFile, term string) ([]models.CandidateFile, error) {
	tokens := tokenize(term)
	if len(tokens) == 0 || len(files) == 0 {
		return files, nil
	}

	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("creating search index: %w", err)
	}
	defer idx.Close()

	batch := idx.NewBatch()
	for i, f := range files {
		doc := map[string]interface{}{
			"title":    strings.ToLower(f.Title),
			"filename": strings.ToLower(f.Filename),
			"label":    strings.ToLower(helpers.ChipLabel(f.Type, f.Filename)),
		}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			return nil, fmt.Errorf("indexing candidate %s: %w", f.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("indexing candidates: %w", err)
	}

	conjuncts := make([]query.Query, 0, len(tokens))
	for _, tok := range tokens {
		disjuncts := make([]query.Query, 0, len(fields))
		for _, f := range fields {
			q := bleve.NewWildcardQuery("*" + tok + "*")
			q.SetField(f)
			disjuncts = append(disjuncts, q)
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(disjuncts...))
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(conjuncts...), len(files), 0, false)
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching candidates: %w", err)
	}

	hits := make(map[int]bool, len(res.Hits))
	for _, h := range res.Hits {
		if n, err := strconv.Atoi(h.ID); err == nil {
			hits[n] = true
		}
	}

	out := make([]models.CandidateFile, 0, len(hits))
	for i, f := range files {
		if hits[i] {
			out = append(out, f)
		}
	}
	log.Debugf("Search %q matched %d of %d candidates", term, len(out), len(files))
	return out, nil
}

// tokenize lowercases term and splits it on whitespace. Wildcard characters
// are dropped so user input is always matched literally.
func tokenize(term string) []string {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(term)) {
		tok = strings.NewReplacer("*", "", "?", "").Replace(tok)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
