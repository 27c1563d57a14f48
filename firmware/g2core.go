package firmware

// G2Core parses the g2core JSON dialect. g2core extends TinyG with full
// six-axis reporting.
type G2Core struct{}

var _ Dialect = G2Core{}

func (G2Core) Name() string { return "g2core" }

func (G2Core) Parse(raw string) (Response, error) {
	return parseJSONResponse("g2core", "g2core", "xyzabc", raw)
}
