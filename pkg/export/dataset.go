package export

// Dataset defines tabular export content with ordered rows.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// Sheet is one tab of a workbook export.
type Sheet struct {
	Name       string
	Dataset    Dataset
	ColWidths  []float64
	AutoFilter bool
}
