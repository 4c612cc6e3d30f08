package export

// Dataset defines tabular export content with a fixed column order.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
}
