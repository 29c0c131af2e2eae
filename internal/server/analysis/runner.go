package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ProgressFunc receives coarse progress updates while an analysis runs.
type ProgressFunc func(percent float64, message string)

// Result is the outcome of one analysis run: which apportionment models were
// applied and a summary of what they saw.
type Result struct {
	ModelsRun []string
	Summary   map[string]any
}

// conservativeTracerKeywords are whole-word markers of conservative tracers:
// major ions, stable isotopes, and conductivity.
var conservativeTracerKeywords = map[string]struct{}{
	"chloride": {}, "cl": {},
	"bromide": {}, "br": {},
	"sodium": {}, "na": {},
	"potassium": {}, "k": {},
	"magnesium": {}, "mg": {}, "mg2": {},
	"calcium": {}, "ca": {}, "ca2": {},
	"δ18o": {}, "d18o": {}, "δ2h": {}, "d2h": {},
	"conductivity": {}, "ec": {},
}

var columnWordSplitter = regexp.MustCompile(`[^a-z0-9δ]+`)

func normalizeColumn(col string) string {
	return strings.TrimSpace(columnWordSplitter.ReplaceAllString(strings.ToLower(col), " "))
}

// DetectTracers inspects column names and reports which model families have
// a supported input signal in the table.
func DetectTracers(t *Table) (nitrate, conservative bool) {
	for _, col := range t.ChemistryColumns() {
		// a column carries exactly one tracer; nitrate wins over
		// unit tokens like "mg" in "Nitrate_mg_l"
		if isNitrateColumn(col) {
			nitrate = true
			continue
		}

		for _, word := range strings.Fields(normalizeColumn(col)) {
			if _, ok := conservativeTracerKeywords[word]; ok {
				conservative = true
				break
			}
		}
	}
	return nitrate, conservative
}

func isNitrateColumn(col string) bool {
	lower := strings.ToLower(col)
	return strings.Contains(lower, "nitrate") || strings.Contains(lower, "no3")
}

// DetectModelType classifies the table as "nitrate", "conservative", or
// "combined" based on the tracers present.
func DetectModelType(t *Table) string {
	nitrate, conservative := DetectTracers(t)
	switch {
	case nitrate && conservative:
		return "combined"
	case nitrate:
		return "nitrate"
	default:
		return "conservative"
	}
}

// Runner selects and runs the apportionment models supported by the input's
// tracers. It fails when no supported signal is detected or a sub-model
// cannot produce a result.
type Runner struct{}

// Run executes the applicable models over t, reporting progress through
// progress (which may be nil).
func (r *Runner) Run(t *Table, parameters map[string]any, progress ProgressFunc) (*Result, error) {
	report := func(pct float64, msg string) {
		if progress != nil {
			progress(pct, msg)
		}
	}

	report(30, "Detecting tracers...")
	nitrate, conservative := DetectTracers(t)
	if !nitrate && !conservative {
		return nil, fmt.Errorf("no supported nitrate or conservative tracer columns detected")
	}

	models := map[string]map[string]any{}

	if nitrate {
		report(40, "Running nitrate apportionment model...")
		summary, err := runNitrateModel(t)
		if err != nil {
			return nil, fmt.Errorf("nitrate model failed: %w", err)
		}
		models["nitrate"] = summary
	}

	if conservative {
		report(55, "Running conservative apportionment model...")
		summary, err := runConservativeModel(t)
		if err != nil {
			return nil, fmt.Errorf("conservative model failed: %w", err)
		}
		models["conservative"] = summary
	}

	report(90, "Finalizing results...")

	run := make([]string, 0, len(models))
	// deterministic order: nitrate before conservative
	for _, name := range []string{"nitrate", "conservative"} {
		if _, ok := models[name]; ok {
			run = append(run, name)
		}
	}

	return &Result{
		ModelsRun: run,
		Summary: map[string]any{
			"total_samples": len(t.Rows),
			"n_models":      len(models),
			"models":        models,
		},
	}, nil
}

func runNitrateModel(t *Table) (map[string]any, error) {
	cols := nitrateColumns(t)
	if len(cols) == 0 {
		return nil, fmt.Errorf("no nitrate concentration columns present")
	}
	return map[string]any{
		"model_type":  "nitrate",
		"n_samples":   len(t.Rows),
		"n_chemicals": len(cols),
	}, nil
}

func runConservativeModel(t *Table) (map[string]any, error) {
	chem := t.ChemistryColumns()
	n := len(chem) - len(nitrateColumns(t))
	if n <= 0 {
		return nil, fmt.Errorf("no conservative tracer columns present")
	}
	return map[string]any{
		"model_type":  "conservative",
		"n_samples":   len(t.Rows),
		"n_chemicals": n,
	}, nil
}

// nitrateColumns returns the chemistry columns carrying a nitrate signal.
func nitrateColumns(t *Table) []string {
	var cols []string
	for _, col := range t.ChemistryColumns() {
		if isNitrateColumn(col) {
			cols = append(cols, col)
		}
	}
	return cols
}

// meanOf returns the mean of the parseable numeric cells among values,
// and false when none parse.
func meanOf(values []string) (float64, bool) {
	var sum float64
	var n int
	for _, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
