package crawler

import (
	"go.uber.org/zap"
)

// linkSelector is one (tag, attribute) pair the extractor walks.
type linkSelector struct {
	Tag  string
	Attr string
}

// linkSelectors is walked in order; the order decides first-discovery
// classification when one page references a URL more than once.
var linkSelectors = []linkSelector{
	{Tag: "a", Attr: "href"},
	{Tag: "script", Attr: "src"},
	{Tag: "link", Attr: "href"},
	{Tag: "img", Attr: "src"},
}

// Extractor collects outgoing links from rendered pages and feeds unseen ones
// to the Frontier.
type Extractor struct {
	frontier *Frontier
	logger   *zap.Logger
}

// NewExtractor builds an Extractor over frontier.
func NewExtractor(frontier *Frontier, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{frontier: frontier, logger: logger}
}

// Extract records rec's outgoing links and appends newly seen URLs to the
// Frontier. It returns the number of records appended. Failures are skipped
// per selector or per value and never reach rec.Errors.
func (e *Extractor) Extract(rec *Record, doc Document) int {
	if rec == nil || doc == nil {
		return 0
	}
	base := rec.Parsed()
	if base == nil {
		return 0
	}
	added := 0
	for _, sel := range linkSelectors {
		values, err := doc.QueryAttributes(sel.Tag, sel.Attr)
		if err != nil {
			e.logger.Debug("attribute query failed",
				zap.String("url", rec.URL),
				zap.String("tag", sel.Tag),
				zap.String("attr", sel.Attr),
				zap.Error(err),
			)
			continue
		}
		for _, raw := range values {
			resolved, ok := ResolveReference(base, raw)
			if !ok {
				continue
			}
			link := resolved.String()
			rec.addLink(link)
			if _, seen := e.frontier.Lookup(link); seen {
				continue
			}
			kind := Classify(base, resolved, sel.Tag)
			_, appended, err := e.frontier.TryAppend(resolved, kind, rec.ID)
			if err != nil {
				e.logger.Warn("frontier append failed", zap.String("url", link), zap.Error(err))
				continue
			}
			if appended {
				added++
			}
		}
	}
	return added
}
