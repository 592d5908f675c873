// Package refdata implements the Reference-Data Filter (C2): reading
// the tabular reference catalogs and producing a size-bounded digest
// for injection into composed prompts.
package refdata

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alebairos/supertask-pipeline/internal/pipelineerr"
	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

const (
	minDigestBytes  = 40 * 1024
	maxDigestBytes  = 48 * 1024
	maxHabitRows    = 50
	minPerDimension = 3
	maxPerDimension = 15
	habitScoreMin   = 15.0
	ttl             = 24 * time.Hour
)

// HabitEntry is one row retained from the habit inventory catalog.
type HabitEntry struct {
	Name      string              `json:"name"`
	Dimension supertask.Dimension `json:"dimension"`
	Score     float64             `json:"score"`
}

// PathExemplar is one level-1→2→3 progression example for a dimension.
type PathExemplar struct {
	Dimension supertask.Dimension `json:"dimension"`
	Levels    [3]string           `json:"levels"`
	Frequency int                 `json:"frequency"`
}

// Digest is the filtered, size-bounded projection of the four
// catalogs (§3 ReferenceDigest).
type Digest struct {
	HabitInventory   []HabitEntry   `json:"habit_inventory"`
	PathExemplars    []PathExemplar `json:"path_exemplars"`
	ObjectiveMapping string         `json:"objective_mapping"`
	CoachDocument    string         `json:"coach_document"`
	BuiltAt          time.Time      `json:"built_at"`
	SizeBytes        int            `json:"size_bytes"`
}

// ForDimension returns a sub-slice of the digest relevant to one
// dimension (§4.4 step 3: "a sub-slice relevant to the detected dimension").
func (d *Digest) ForDimension(dim supertask.Dimension) Digest {
	out := Digest{ObjectiveMapping: d.ObjectiveMapping, CoachDocument: d.CoachDocument, BuiltAt: d.BuiltAt}
	for _, h := range d.HabitInventory {
		if h.Dimension == dim {
			out.HabitInventory = append(out.HabitInventory, h)
		}
	}
	for _, p := range d.PathExemplars {
		if p.Dimension == dim {
			out.PathExemplars = append(out.PathExemplars, p)
		}
	}
	return out
}

// Filter reads the four catalogs from dir and caches the resulting
// digest for ttl. Concurrent rebuilds are serialized by mu so losers
// reuse the winner's result instead of racing to rebuild (§5).
type Filter struct {
	dir string

	mu      sync.Mutex
	cached  *Digest
	builtAt time.Time
}

// NewFilter returns a Filter reading catalogs from dir.
func NewFilter(dir string) *Filter {
	return &Filter{dir: dir}
}

// Digest returns the cached digest, rebuilding it if absent or older
// than the 24-hour TTL.
func (f *Filter) Digest() (*Digest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != nil && time.Since(f.builtAt) < ttl {
		return f.cached, nil
	}

	d, err := f.build()
	if err != nil {
		return nil, err
	}
	f.cached = d
	f.builtAt = d.BuiltAt
	return d, nil
}

// ClearCache forces the next Digest() call to rebuild.
func (f *Filter) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = nil
}

func (f *Filter) build() (*Digest, error) {
	habits, err := f.readHabitInventory()
	if err != nil {
		return nil, err
	}
	exemplars, err := f.readPathExemplars()
	if err != nil {
		return nil, err
	}
	objMapping, err := f.readWholeFile("objective_mapping.csv")
	if err != nil {
		return nil, err
	}
	coachDoc, err := f.readWholeFile("coach_document.md")
	if err != nil {
		return nil, err
	}

	d := &Digest{
		HabitInventory:   habits,
		PathExemplars:    exemplars,
		ObjectiveMapping: objMapping,
		CoachDocument:    coachDoc,
		BuiltAt:          time.Now(),
	}
	shrinkToBudget(d)
	d.SizeBytes = serializedSize(d)
	return d, nil
}

func (f *Filter) readWholeFile(name string) (string, error) {
	path := filepath.Join(f.dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", pipelineerr.New(pipelineerr.ReferenceDataMissing, fmt.Sprintf("required catalog %s is absent", name), err)
		}
		return "", pipelineerr.New(pipelineerr.ReferenceDataMissing, fmt.Sprintf("cannot read %s", name), err)
	}
	return string(raw), nil
}

// readHabitInventory applies the §4.2 filtering rule: keep rows whose
// score exceeds the threshold, rank descending, cap at 50 overall,
// dedupe near-identical names, and hold every dimension within the §3
// ReferenceDigest band of 3–15 representative entries.
func (f *Filter) readHabitInventory() ([]HabitEntry, error) {
	path := filepath.Join(f.dir, "habit_inventory.csv")
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	all := make([]HabitEntry, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		score, _ := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		all = append(all, HabitEntry{
			Name:      strings.TrimSpace(row[0]),
			Dimension: supertask.Dimension(strings.TrimSpace(row[1])),
			Score:     score,
		})
	}

	kept := make([]HabitEntry, 0, len(all))
	for _, h := range all {
		if h.Score > habitScoreMin {
			kept = append(kept, h)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	kept = dedupeHabitNames(kept)

	byDimension := map[supertask.Dimension][]HabitEntry{}
	sortedAll := append([]HabitEntry(nil), all...)
	sort.SliceStable(sortedAll, func(i, j int) bool { return sortedAll[i].Score > sortedAll[j].Score })
	for _, h := range sortedAll {
		byDimension[h.Dimension] = append(byDimension[h.Dimension], h)
	}

	perDimension := map[supertask.Dimension]int{}
	result := make([]HabitEntry, 0, maxHabitRows)
	for _, h := range kept {
		if len(result) >= maxHabitRows {
			break
		}
		if perDimension[h.Dimension] >= maxPerDimension {
			continue
		}
		result = append(result, h)
		perDimension[h.Dimension]++
	}

	// Top up any dimension below the minimum band, even past the score
	// cut, drawing from that dimension's highest-scored remaining rows.
	for _, dim := range supertask.Dimensions {
		for perDimension[dim] < minPerDimension {
			candidate, ok := nextUnused(byDimension[dim], result)
			if !ok {
				break
			}
			result = append(result, candidate)
			perDimension[dim]++
		}
	}
	return result, nil
}

func nextUnused(candidates, already []HabitEntry) (HabitEntry, bool) {
	used := map[string]bool{}
	for _, h := range already {
		used[strings.ToLower(h.Name)] = true
	}
	for _, c := range candidates {
		if !used[strings.ToLower(c.Name)] {
			return c, true
		}
	}
	return HabitEntry{}, false
}

func dedupeHabitNames(in []HabitEntry) []HabitEntry {
	seen := map[string]bool{}
	out := make([]HabitEntry, 0, len(in))
	for _, h := range in {
		key := strings.ToLower(strings.TrimSpace(h.Name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

// readPathExemplars keeps two complete level-1→2→3 progressions per
// dimension, plus frequency annotations (§4.2).
func (f *Filter) readPathExemplars() ([]PathExemplar, error) {
	path := filepath.Join(f.dir, "path_exemplars.csv")
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	type key struct {
		dim  supertask.Dimension
		name string
	}
	byKey := map[key]*PathExemplar{}
	order := []key{}
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		dim := supertask.Dimension(strings.TrimSpace(row[0]))
		name := strings.TrimSpace(row[1])
		level, _ := strconv.Atoi(strings.TrimSpace(row[2]))
		title := strings.TrimSpace(row[3])
		freq, _ := strconv.Atoi(strings.TrimSpace(row[4]))
		k := key{dim, name}
		pe, ok := byKey[k]
		if !ok {
			pe = &PathExemplar{Dimension: dim, Frequency: freq}
			byKey[k] = pe
			order = append(order, k)
		}
		if level >= 1 && level <= 3 {
			pe.Levels[level-1] = title
		}
		if freq > pe.Frequency {
			pe.Frequency = freq
		}
	}

	byDimension := map[supertask.Dimension][]*PathExemplar{}
	for _, k := range order {
		pe := byKey[k]
		if pe.Levels[0] == "" || pe.Levels[1] == "" || pe.Levels[2] == "" {
			continue // incomplete progression, not a valid exemplar
		}
		byDimension[pe.Dimension] = append(byDimension[pe.Dimension], pe)
	}

	result := make([]PathExemplar, 0, len(supertask.Dimensions)*2)
	for _, dim := range supertask.Dimensions {
		list := byDimension[dim]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Frequency > list[j].Frequency })
		for i, pe := range list {
			if i >= 2 {
				break
			}
			result = append(result, *pe)
		}
	}
	return result, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pipelineerr.New(pipelineerr.ReferenceDataMissing, fmt.Sprintf("required catalog %s is absent", filepath.Base(path)), err)
		}
		return nil, pipelineerr.New(pipelineerr.ReferenceDataMissing, fmt.Sprintf("cannot open %s", filepath.Base(path)), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.ReferenceDataMissing, fmt.Sprintf("cannot parse %s", filepath.Base(path)), err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // drop header
	}
	return rows, nil
}

// shrinkToBudget drops lower-ranked habit rows first, then lower-ranked
// path rows, until the serialized digest is at most 48KB (§4.2). A digest
// already under 40KB is left as it is; nothing raises it to that floor.
func shrinkToBudget(d *Digest) {
	for serializedSize(d) > maxDigestBytes {
		if len(d.HabitInventory) > 1 {
			d.HabitInventory = d.HabitInventory[:len(d.HabitInventory)-1]
			continue
		}
		if len(d.PathExemplars) > 1 {
			d.PathExemplars = d.PathExemplars[:len(d.PathExemplars)-1]
			continue
		}
		break
	}
}

func serializedSize(d *Digest) int {
	raw, _ := json.Marshal(d)
	return len(raw)
}

var _ = minDigestBytes // lower end of the size band; not enforced by shrinkToBudget
