package sourcecode

import "fmt"

// PositionRange is a span translated to line/column coordinates.
type PositionRange struct {
	SourceName  string `json:"sourceName"`
	StartLine   int32  `json:"line"`      // 1-indexed
	StartColumn int32  `json:"column"`    // 1-indexed
	EndLine     int32  `json:"endLine"`   // 1-indexed
	EndColumn   int32  `json:"endColumn"` // 1-indexed
	Span        Span   `json:"span"`
}

func (pos PositionRange) String() string {
	return fmt.Sprintf("%s:%d:%d:", pos.SourceName, pos.StartLine, pos.StartColumn)
}

// Source is a named piece of source text with helpers to translate spans to
// line/column positions for error reporting.
type Source struct {
	name  string
	runes []rune
}

func NewSource(name, code string) *Source {
	return &Source{name: name, runes: []rune(code)}
}

func (s *Source) Name() string { return s.name }

// Result should not be modified.
func (s *Source) Runes() []rune { return s.runes }

func (s *Source) lineColumn(index int32) (int32, int32) {
	line := int32(1)
	col := int32(1)
	if index > int32(len(s.runes)) {
		index = int32(len(s.runes))
	}
	for i := int32(0); i < index; i++ {
		if s.runes[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// PositionOf translates span into line/column coordinates.
func (s *Source) PositionOf(span Span) PositionRange {
	startLine, startCol := s.lineColumn(span.Start)
	endLine, endCol := s.lineColumn(span.End)
	return PositionRange{
		SourceName:  s.name,
		StartLine:   startLine,
		StartColumn: startCol,
		EndLine:     endLine,
		EndColumn:   endCol,
		Span:        span,
	}
}
