package ir

import (
	"fmt"
	"strings"
)

// Print renders a node as compact single-line source, mainly for tests and
// trace logging.
func Print(node Node) string {
	var sb strings.Builder
	printNode(&sb, node)
	return sb.String()
}

func printNode(sb *strings.Builder, node Node) {
	switch n := node.(type) {
	case *Block:
		sb.WriteString("{")
		for _, st := range n.Statements {
			sb.WriteString(" ")
			printNode(sb, st)
		}
		sb.WriteString(" }")
	case *ExpressionStatement:
		printNode(sb, n.Expression)
	case *VariableDeclaration:
		sb.WriteString("let ")
		sb.WriteString(strings.Join(n.Variables, ", "))
		if n.Value != nil {
			sb.WriteString(" := ")
			printNode(sb, n.Value)
		}
	case *Assignment:
		names := make([]string, len(n.VariableNames))
		for i, id := range n.VariableNames {
			names[i] = id.Name
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(" := ")
		printNode(sb, n.Value)
	case *If:
		sb.WriteString("if ")
		printNode(sb, n.Condition)
		sb.WriteString(" ")
		printNode(sb, n.Body)
	case *Switch:
		sb.WriteString("switch ")
		printNode(sb, n.Expression)
		for _, c := range n.Cases {
			if c.Value == nil {
				sb.WriteString(" default ")
			} else {
				sb.WriteString(" case ")
				printNode(sb, c.Value)
				sb.WriteString(" ")
			}
			printNode(sb, c.Body)
		}
	case *ForLoop:
		sb.WriteString("for ")
		printNode(sb, n.Pre)
		sb.WriteString(" ")
		printNode(sb, n.Condition)
		sb.WriteString(" ")
		printNode(sb, n.Post)
		sb.WriteString(" ")
		printNode(sb, n.Body)
	case *Break:
		sb.WriteString("break")
	case *Continue:
		sb.WriteString("continue")
	case *Leave:
		sb.WriteString("leave")
	case *FunctionDefinition:
		fmt.Fprintf(sb, "function %s(%s)", n.Name, strings.Join(n.Parameters, ", "))
		if len(n.ReturnVariables) > 0 {
			sb.WriteString(" -> ")
			sb.WriteString(strings.Join(n.ReturnVariables, ", "))
		}
		sb.WriteString(" ")
		printNode(sb, n.Body)
	case *FunctionCall:
		sb.WriteString(n.Name)
		sb.WriteString("(")
		for i, arg := range n.Arguments {
			if i > 0 {
				sb.WriteString(", ")
			}
			printNode(sb, arg)
		}
		sb.WriteString(")")
	case *Identifier:
		sb.WriteString(n.Name)
	case *Literal:
		switch n.Kind {
		case LiteralString:
			fmt.Fprintf(sb, "%q", n.Value)
		default:
			sb.WriteString(n.Value)
		}
	default:
		fmt.Fprintf(sb, "<%T>", n)
	}
}
