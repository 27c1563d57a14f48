package firmware

// TinyG parses the TinyG JSON dialect. TinyG machines report four axes.
type TinyG struct{}

var _ Dialect = TinyG{}

func (TinyG) Name() string { return "TinyG" }

func (TinyG) Parse(raw string) (Response, error) {
	return parseJSONResponse("TinyG", "tinyg", "xyza", raw)
}
