package sourcecode

import "fmt"

// Span locates a node in the original source, as a half-open byte range.
type Span struct {
	Start int32 `json:"start"`
	End   int32 `json:"end"`
}

func NewSpan(start, end int32) Span {
	return Span{Start: start, End: end}
}

func (s Span) IsValid() bool {
	return s.End >= s.Start && s.Start >= 0
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Start, s.End)
}
