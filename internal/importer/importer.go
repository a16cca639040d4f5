// Package importer bulk-loads hierarchy overrides from CSV. Rows are matched
// to stored campaigns by id, then by normalized name, then by the closest
// name within a similarity cutoff.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/ignite/campaign-warehouse/internal/domain"
	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
	"github.com/ignite/campaign-warehouse/internal/service/hierarchy"
)

// Defaults applied to imported overrides.
const (
	DefaultAuthor      = "CSV Import"
	DefaultReason      = "CSV hierarchy import"
	DefaultFuzzyCutoff = 0.85

	unknownField = "Unknown"
)

// ErrMissingColumns is returned when the header has neither campaign_id nor
// campaign_name.
var ErrMissingColumns = errors.New("csv needs a campaign_id or campaign_name column")

// Campaigns lists the stored campaigns to match against.
type Campaigns interface {
	ListCampaignRefs(ctx context.Context) ([]hierarchy.CampaignRef, error)
}

// Overrides records an override.
type Overrides interface {
	SetOverride(ctx context.Context, campaignID int64, fields domain.OverrideFields, reason, author string) (string, error)
}

// Options controls one import.
type Options struct {
	DryRun      bool
	Author      string
	Reason      string
	FuzzyCutoff float64
}

// Match kinds.
const (
	MatchID    = "id"
	MatchExact = "name"
	MatchFuzzy = "fuzzy"
)

// FuzzyMatch records a row matched by similarity rather than equality.
type FuzzyMatch struct {
	Row         int     `json:"row"`
	CSVName     string  `json:"csv_name"`
	MatchedName string  `json:"matched_name"`
	CampaignID  int64   `json:"campaign_id"`
	Similarity  float64 `json:"similarity"`
}

// RowError is a row that could not be imported.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result summarises an import.
type Result struct {
	Rows         int            `json:"rows"`
	Matched      int            `json:"matched"`
	Imported     int            `json:"imported"`
	ByKind       map[string]int `json:"matches_by_kind"`
	NotFound     []string       `json:"not_found,omitempty"`
	FuzzyMatches []FuzzyMatch   `json:"fuzzy_matches,omitempty"`
	Errors       []RowError     `json:"errors,omitempty"`
	DryRun       bool           `json:"dry_run"`
}

// Importer applies CSV rows as overrides.
type Importer struct {
	campaigns Campaigns
	overrides Overrides
}

// New creates an Importer.
func New(campaigns Campaigns, overrides Overrides) *Importer {
	return &Importer{campaigns: campaigns, overrides: overrides}
}

type row struct {
	line   int
	id     string
	name   string
	fields domain.OverrideFields
}

// Import reads CSV from r and records one override per matched row. With
// DryRun set the matches are computed and nothing is written.
func (im *Importer) Import(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	if opts.Author == "" {
		opts.Author = DefaultAuthor
	}
	if opts.Reason == "" {
		opts.Reason = DefaultReason
	}
	if opts.FuzzyCutoff <= 0 {
		opts.FuzzyCutoff = DefaultFuzzyCutoff
	}

	rows, res, err := parse(r)
	if err != nil {
		return nil, err
	}
	res.DryRun = opts.DryRun

	refs, err := im.campaigns.ListCampaignRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load campaigns: %w", err)
	}
	idx := newIndex(refs)

	for _, rw := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id, kind, fm, ok := idx.match(rw, opts.FuzzyCutoff)
		if !ok {
			label := rw.name
			if label == "" {
				label = "id " + rw.id
			}
			res.NotFound = append(res.NotFound, label)
			continue
		}
		res.Matched++
		res.ByKind[kind]++
		if fm != nil {
			res.FuzzyMatches = append(res.FuzzyMatches, *fm)
		}
		if opts.DryRun {
			continue
		}
		if _, err := im.overrides.SetOverride(ctx, id, rw.fields, opts.Reason, opts.Author); err != nil {
			res.Errors = append(res.Errors, RowError{Row: rw.line, Error: err.Error()})
			continue
		}
		res.Imported++
	}

	logger.Info("importer: csv import finished",
		"rows", res.Rows, "matched", res.Matched, "imported", res.Imported,
		"not_found", len(res.NotFound), "fuzzy", len(res.FuzzyMatches),
		"errors", len(res.Errors), "dry_run", opts.DryRun)
	return res, nil
}

func parse(r io.Reader) ([]row, *Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	col := indexMap(header)
	_, hasID := col["campaign_id"]
	_, hasName := col["campaign_name"]
	if !hasID && !hasName {
		return nil, nil, ErrMissingColumns
	}

	res := &Result{ByKind: map[string]int{}}
	var rows []row
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line++
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			res.Errors = append(res.Errors, RowError{Row: line, Error: err.Error()})
			continue
		}
		line, _ = cr.FieldPos(0)
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if blank(rec) {
			continue
		}
		res.Rows++

		rw := row{line: line, id: get("campaign_id"), name: get("campaign_name")}
		if rw.id == "" && rw.name == "" {
			res.Errors = append(res.Errors, RowError{Row: line, Error: "missing campaign_id and campaign_name"})
			continue
		}
		network := CleanField(get("network"), unknownField)
		dom := CleanField(get("domain"), unknownField)
		placement := CleanField(get("placement"), unknownField)
		targeting := CleanField(get("targeting"), unknownField)
		special := CleanField(get("special"), domain.DefaultSpecial)
		rw.fields = domain.OverrideFields{
			Network:   &network,
			Domain:    &dom,
			Placement: &placement,
			Targeting: &targeting,
			Special:   &special,
		}
		rows = append(rows, rw)
	}
	return rows, res, nil
}

func indexMap(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			continue
		}
		m[strings.ToLower(h)] = i
	}
	return m
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// CleanField trims v and replaces an empty or "none" value with def.
func CleanField(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "none") {
		return def
	}
	return v
}

// NormalizeName lowercases, trims and collapses whitespace runs.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

type entry struct {
	ref        hierarchy.CampaignRef
	normalized string
}

type index struct {
	byID   map[int64]hierarchy.CampaignRef
	byName map[string]hierarchy.CampaignRef
	all    []entry
}

// newIndex keys campaigns by id and normalized name. When names collide
// the first campaign in refs wins.
func newIndex(refs []hierarchy.CampaignRef) *index {
	idx := &index{
		byID:   make(map[int64]hierarchy.CampaignRef, len(refs)),
		byName: make(map[string]hierarchy.CampaignRef, len(refs)),
	}
	for _, ref := range refs {
		idx.byID[ref.ID] = ref
		n := NormalizeName(ref.Name)
		if _, dup := idx.byName[n]; dup {
			continue
		}
		idx.byName[n] = ref
		idx.all = append(idx.all, entry{ref: ref, normalized: n})
	}
	return idx
}

func (idx *index) match(rw row, cutoff float64) (int64, string, *FuzzyMatch, bool) {
	if rw.id != "" {
		if id, err := strconv.ParseInt(rw.id, 10, 64); err == nil {
			if _, ok := idx.byID[id]; ok {
				return id, MatchID, nil, true
			}
		}
	}
	if rw.name == "" {
		return 0, "", nil, false
	}
	n := NormalizeName(rw.name)
	if ref, ok := idx.byName[n]; ok {
		return ref.ID, MatchExact, nil, true
	}

	best, bestScore := -1, 0.0
	for i, e := range idx.all {
		if s := Similarity(n, e.normalized); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 || bestScore < cutoff {
		return 0, "", nil, false
	}
	ref := idx.all[best].ref
	return ref.ID, MatchFuzzy, &FuzzyMatch{
		Row:         rw.line,
		CSVName:     rw.name,
		MatchedName: ref.Name,
		CampaignID:  ref.ID,
		Similarity:  bestScore,
	}, true
}
