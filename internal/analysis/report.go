package analysis

// RowKind is the type of a report row under an analysis target.
type RowKind string

const (
	RowProducts    RowKind = "Products"
	RowProbability RowKind = "Probability"
	RowImportance  RowKind = "Importance"
)

// Row summarizes one result section. Count is the number of products or
// importance records; Value is the probability.
type Row struct {
	Kind  RowKind
	Count int
	Value float64
}

// ReportItem groups the rows of one analysis target.
type ReportItem struct {
	Target   string
	Rows     []Row
	Warnings []string
}

// Report organizes results as one item per target. Products are always
// present; probability and importance rows appear only when reported.
func Report(results *Results) []ReportItem {
	if results == nil {
		return nil
	}
	items := make([]ReportItem, 0, len(results.Results))
	for _, r := range results.Results {
		item := ReportItem{
			Target:   r.Target,
			Rows:     []Row{{Kind: RowProducts, Count: len(r.Products)}},
			Warnings: append([]string(nil), r.Warnings...),
		}
		if r.Probability != nil {
			item.Rows = append(item.Rows, Row{Kind: RowProbability, Value: *r.Probability})
		}
		if len(r.Importance) > 0 {
			item.Rows = append(item.Rows, Row{Kind: RowImportance, Count: len(r.Importance)})
		}
		items = append(items, item)
	}
	return items
}
