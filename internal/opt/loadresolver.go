package opt

import (
	"math/big"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"

	"github.com/silexlang/silex/internal/evm"
	"github.com/silexlang/silex/internal/ir"
)

// Options configures an optimizer run.
type Options struct {
	// Logger receives trace-level events for every rewrite.
	Logger *zerolog.Logger
}

// LoadResolver rewrites sload/mload calls whose loaded word is known to sit
// in a tracked variable into plain identifier reads, and folds
// keccak256(p, 32) into a literal when the hashed word is a known constant.
// If msize appears anywhere in the unit, memory forwarding is disabled
// unit-wide; storage forwarding is unaffected.
type LoadResolver struct {
	*DataFlowAnalyzer
	optimizeMLoad bool
}

// ResolveLoads runs the load resolver over block in place. The pass is
// idempotent: running it again leaves the IR unchanged.
func ResolveLoads(block *ir.Block, dialect *ir.Dialect, opts Options) error {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	fnEffects := FunctionSideEffects(block, dialect)
	r := &LoadResolver{
		DataFlowAnalyzer: NewDataFlowAnalyzer(dialect, fnEffects, logger),
		optimizeMLoad:    !ContainsMSize(block, dialect),
	}
	r.ExpressionHook = r.resolveExpression
	r.VisitBlock(block)
	return nil
}

func (r *LoadResolver) resolveExpression(expr *ir.Expression) {
	call, ok := (*expr).(*ir.FunctionCall)
	if !ok {
		return
	}
	// resolve through the dialect's instruction binding rather than the
	// builtin's name, so aliased load builtins are handled too
	builtin := r.dialect.Builtin(call.Name)
	if builtin == nil || builtin.Emit != nil {
		return
	}
	switch builtin.Instruction {
	case evm.SLOAD:
		r.tryResolve(expr, call, r.storage)
	case evm.MLOAD:
		if r.optimizeMLoad {
			r.tryResolve(expr, call, r.memory)
		}
	case evm.KECCAK256:
		r.tryEvaluateKeccak(expr, call)
	}
}

func (r *LoadResolver) tryResolve(expr *ir.Expression, call *ir.FunctionCall, known map[string]string) {
	if len(call.Arguments) != 1 {
		return
	}
	key, ok := call.Arguments[0].(*ir.Identifier)
	if !ok {
		return
	}
	name, ok := known[key.Name]
	if !ok || !r.inScope(name) {
		return
	}
	r.log.Trace().Str("load", call.Name).Str("key", key.Name).Str("variable", name).
		Msg("forwarding loaded value")
	*expr = &ir.Identifier{Pos: call.Pos, Name: name}
}

// tryEvaluateKeccak folds keccak256(p, 32) when the word stored at p is
// known to be a constant. Only full-word hashes can be folded; any other
// length leaves the call alone.
func (r *LoadResolver) tryEvaluateKeccak(expr *ir.Expression, call *ir.FunctionCall) {
	if len(call.Arguments) != 2 {
		return
	}
	length, ok := r.literalValue(call.Arguments[1])
	if !ok || length.Cmp(big.NewInt(32)) != 0 {
		return
	}
	key, ok := call.Arguments[0].(*ir.Identifier)
	if !ok {
		return
	}
	name, ok := r.memory[key.Name]
	if !ok || !r.inScope(name) {
		return
	}
	content, ok := r.literalValue(&ir.Identifier{Name: name})
	if !ok {
		return
	}
	var word [32]byte
	content.FillBytes(word[:])
	h := sha3.NewLegacyKeccak256()
	h.Write(word[:])
	hash := new(big.Int).SetBytes(h.Sum(nil))
	r.log.Trace().Str("key", key.Name).Msg("folding keccak256 of a known word")
	*expr = &ir.Literal{Pos: call.Pos, Kind: ir.LiteralNumber, Value: hash.String()}
}

// literalValue resolves expr to a constant word, following one level of
// value knowledge for identifiers.
func (r *LoadResolver) literalValue(expr ir.Expression) (*big.Int, bool) {
	switch expr := expr.(type) {
	case *ir.Literal:
		v, err := ir.LiteralValue(expr)
		return v, err == nil
	case *ir.Identifier:
		tracked, ok := r.value[expr.Name]
		if !ok {
			return nil, false
		}
		lit, ok := tracked.(*ir.Literal)
		if !ok {
			return nil, false
		}
		v, err := ir.LiteralValue(lit)
		return v, err == nil
	}
	return nil, false
}
