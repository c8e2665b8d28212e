package codegen

import "github.com/silexlang/silex/internal/ir"

// countReferences counts, per variable, how many identifier occurrences the
// code generator will consume: every read and every assignment target.
func countReferences(block *ir.Block, info *ir.AnalysisInfo) map[ir.VarID]int {
	refs := map[ir.VarID]int{}
	var countStatement func(st ir.Statement)
	var countExpression func(expr ir.Expression)

	countExpression = func(expr ir.Expression) {
		switch expr := expr.(type) {
		case *ir.Identifier:
			if v, ok := info.VarOf(expr); ok {
				refs[v]++
			}
		case *ir.FunctionCall:
			for _, arg := range expr.Arguments {
				countExpression(arg)
			}
		}
	}
	countBlock := func(b *ir.Block) {
		for _, st := range b.Statements {
			countStatement(st)
		}
	}
	countStatement = func(st ir.Statement) {
		switch st := st.(type) {
		case *ir.Block:
			countBlock(st)
		case *ir.ExpressionStatement:
			countExpression(st.Expression)
		case *ir.VariableDeclaration:
			if st.Value != nil {
				countExpression(st.Value)
			}
		case *ir.Assignment:
			for _, id := range st.VariableNames {
				if v, ok := info.VarOf(id); ok {
					refs[v]++
				}
			}
			countExpression(st.Value)
		case *ir.If:
			countExpression(st.Condition)
			countBlock(st.Body)
		case *ir.Switch:
			countExpression(st.Expression)
			for _, c := range st.Cases {
				countBlock(c.Body)
			}
		case *ir.ForLoop:
			countBlock(st.Pre)
			countExpression(st.Condition)
			countBlock(st.Body)
			countBlock(st.Post)
		case *ir.FunctionDefinition:
			countBlock(st.Body)
		}
	}
	countBlock(block)
	return refs
}
