package core

// Attribute is a string key/value pair attached to a response so indexers
// can observe what an execution did.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is returned by instantiate and execute handlers.
type Response struct {
	Attributes []Attribute `json:"attributes"`
}

func NewResponse() *Response {
	return &Response{Attributes: []Attribute{}}
}

// AddAttribute appends a key/value pair and returns the response for chaining.
func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// Attribute returns the first value stored under key.
func (r *Response) Attribute(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, attr := range r.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// KeyValues flattens the attributes into the alternating key/value form
// accepted by Context.Log.
func (r *Response) KeyValues() []any {
	kv := make([]any, 0, 2*len(r.Attributes))
	for _, attr := range r.Attributes {
		kv = append(kv, attr.Key, attr.Value)
	}
	return kv
}
