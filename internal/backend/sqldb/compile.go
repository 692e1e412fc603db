package sqldb

import (
	"fmt"
	"strings"

	"github.com/roach88/tally/internal/constraint"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/table"
)

// statement is one compiled query with its bind arguments.
type statement struct {
	sql  string
	args []any
}

// compiler accumulates bind arguments while SQL text is assembled.
type compiler struct {
	dialect Dialect
	args    []any
}

func (c *compiler) bind(v table.Value) string {
	c.args = append(c.args, bindValue(v))
	return c.dialect.Placeholder(len(c.args))
}

func bindValue(v table.Value) any {
	switch x := v.(type) {
	case table.Int:
		return int64(x)
	case table.Float:
		return float64(x)
	case table.Bool:
		return bool(x)
	case table.String:
		return string(x)
	default:
		return nil
	}
}

// sourceExpr resolves a declared feature to its SQL expression. Bare column
// names are quoted; anything else is treated as a raw expression and
// parenthesized. The implicit count compiles to the literal 1.
func sourceExpr(d Dialect, decl *schema.Provider, name, alias string) (string, error) {
	kind, ok := decl.FieldKind(name)
	if !ok {
		return "", fmt.Errorf("sqldb: provider %q has no feature %q", decl.Name(), name)
	}
	var expr string
	switch kind {
	case schema.KindIdentifier:
		id, _ := decl.Identifier(name)
		expr = id.Expr
	case schema.KindMeasure:
		m, _ := decl.Measure(name)
		if m.Name == schema.CountMeasure && m.Expr == "" {
			return "1", nil
		}
		expr = m.Expr
	default:
		dim, _ := decl.Dimension(name)
		expr = dim.Expr
	}
	if expr == "" {
		expr = name
	}
	if !bareColumn(expr) {
		return "(" + expr + ")", nil
	}
	if alias != "" {
		return alias + "." + d.Quote(expr), nil
	}
	return d.Quote(expr), nil
}

func bareColumn(expr string) bool {
	for _, r := range expr {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return expr != ""
}

// compileSelect builds the single-provider statement: the requested feature
// columns under their declared names, the pushed-down predicate, and a total
// ordering for reproducible output.
func compileSelect(d Dialect, decl *schema.Provider, source string, req engine.AdapterRequest) (statement, error) {
	c := &compiler{dialect: d}
	cols := make([]string, 0, len(req.Columns))
	for _, name := range req.Columns {
		expr, err := sourceExpr(d, decl, name, "")
		if err != nil {
			return statement{}, err
		}
		cols = append(cols, expr+" AS "+d.Quote(name))
	}
	if len(cols) == 0 {
		return statement{}, fmt.Errorf("sqldb: provider %q: empty column list", decl.Name())
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(d.Quote(source))
	where, err := c.compileWhere(req.Where, func(target string) (string, error) {
		return sourceExpr(d, decl, target, "")
	})
	if err != nil {
		return statement{}, fmt.Errorf("sqldb: provider %q: %w", decl.Name(), err)
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	sb.WriteString(orderByAll(len(cols)))
	return statement{sql: sb.String(), args: c.args}, nil
}

// compileJoin builds the fused parent/child statement. Output columns must
// match the engine's own merge exactly: left columns under their exposed
// names, then the child's non-key columns under the relationship prefix.
func compileJoin(d Dialect, left, right *Provider, req engine.JoinedRequest) (statement, error) {
	c := &compiler{dialect: d}
	exposeLeft := exposed(req.LeftRename)
	exposeRight := exposed(req.RightRename)

	var cols []string
	for _, name := range req.Left.Columns {
		expr, err := sourceExpr(d, left.decl, name, "l")
		if err != nil {
			return statement{}, err
		}
		cols = append(cols, expr+" AS "+d.Quote(exposeLeft(name)))
	}
	rightKeys := make(map[string]bool, len(req.On))
	for _, k := range req.On {
		rightKeys[k.Right] = true
	}
	for _, name := range req.Right.Columns {
		out := exposeRight(name)
		if rightKeys[out] {
			continue
		}
		if req.Via != "" {
			out = schema.JoinVia(req.Via, out)
		}
		expr, err := sourceExpr(d, right.decl, name, "r")
		if err != nil {
			return statement{}, err
		}
		cols = append(cols, expr+" AS "+d.Quote(out))
	}
	if len(cols) == 0 {
		return statement{}, fmt.Errorf("sqldb: fused join of %q and %q selects nothing", left.decl.Name(), right.decl.Name())
	}

	joinWord := "JOIN"
	if req.Kind == table.JoinLeft {
		joinWord = "LEFT JOIN"
	}
	leftDeclared := declared(req.LeftRename, req.Left.Columns)
	rightDeclared := declared(req.RightRename, req.Right.Columns)
	var on []string
	for _, k := range req.On {
		le, err := sourceExpr(d, left.decl, leftDeclared(k.Left), "l")
		if err != nil {
			return statement{}, err
		}
		re, err := sourceExpr(d, right.decl, rightDeclared(k.Right), "r")
		if err != nil {
			return statement{}, err
		}
		on = append(on, le+" = "+re)
	}
	if len(on) == 0 {
		return statement{}, fmt.Errorf("sqldb: fused join of %q and %q has no keys", left.decl.Name(), right.decl.Name())
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(d.Quote(left.source))
	sb.WriteString(" AS l ")
	sb.WriteString(joinWord)
	sb.WriteString(" ")
	sb.WriteString(d.Quote(right.source))
	sb.WriteString(" AS r ON ")
	sb.WriteString(strings.Join(on, " AND "))

	var wheres []string
	leftWhere, err := c.compileWhere(req.Left.Where, func(target string) (string, error) {
		return sourceExpr(d, left.decl, target, "l")
	})
	if err != nil {
		return statement{}, err
	}
	if leftWhere != "" {
		wheres = append(wheres, leftWhere)
	}
	rightWhere, err := c.compileWhere(req.Right.Where, func(target string) (string, error) {
		return sourceExpr(d, right.decl, target, "r")
	})
	if err != nil {
		return statement{}, err
	}
	if rightWhere != "" {
		wheres = append(wheres, rightWhere)
	}
	if len(wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(wheres, " AND "))
	}
	sb.WriteString(orderByAll(len(cols)))
	return statement{sql: sb.String(), args: c.args}, nil
}

// exposed turns a declared-to-exposed rename map into a total function.
func exposed(rename map[string]string) func(string) string {
	return func(name string) string {
		if out, ok := rename[name]; ok {
			return out
		}
		return name
	}
}

// declared inverts a rename map back onto the declared names.
func declared(rename map[string]string, cols []string) func(string) string {
	inverse := make(map[string]string, len(rename))
	for decl, exp := range rename {
		inverse[exp] = decl
	}
	return func(name string) string {
		if decl, ok := inverse[name]; ok {
			return decl
		}
		return name
	}
}

// orderByAll orders by every output column, leftmost first. The ordinal form
// sidesteps re-quoting computed column names.
func orderByAll(n int) string {
	ords := make([]string, n)
	for i := range ords {
		ords[i] = fmt.Sprintf("%d", i+1)
	}
	return " ORDER BY " + strings.Join(ords, ", ")
}

// compileWhere renders a constraint tree, resolving condition targets to SQL
// expressions. Returns empty text for the empty constraint.
func (c *compiler) compileWhere(where constraint.Constraint, resolve func(string) (string, error)) (string, error) {
	if constraint.IsNone(where) {
		return "", nil
	}
	return c.compileNode(where, resolve)
}

func (c *compiler) compileNode(node constraint.Constraint, resolve func(string) (string, error)) (string, error) {
	switch n := node.(type) {
	case constraint.Condition:
		return c.compileCondition(n, resolve)
	case constraint.And:
		return c.compileContainer(n.Operands(), " AND ", resolve)
	case constraint.Or:
		return c.compileContainer(n.Operands(), " OR ", resolve)
	default:
		return "", fmt.Errorf("uncompilable constraint %q", node.Describe())
	}
}

func (c *compiler) compileContainer(ops []constraint.Constraint, sep string, resolve func(string) (string, error)) (string, error) {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		part, err := c.compileNode(op, resolve)
		if err != nil {
			return "", err
		}
		switch op.Kind() {
		case constraint.KindAnd, constraint.KindOr:
			part = "(" + part + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, sep), nil
}

func (c *compiler) compileCondition(cond constraint.Condition, resolve func(string) (string, error)) (string, error) {
	expr, err := resolve(cond.Target())
	if err != nil {
		return "", err
	}
	switch cond.Op() {
	case constraint.OpIn:
		var members []string
		var hasNull bool
		for _, v := range cond.Values() {
			if table.IsNull(v) {
				hasNull = true
				continue
			}
			members = append(members, c.bind(v))
		}
		var clause string
		if len(members) > 0 {
			clause = expr + " IN (" + strings.Join(members, ", ") + ")"
		}
		if hasNull {
			isNull := expr + " IS NULL"
			if clause == "" {
				return isNull, nil
			}
			return "(" + clause + " OR " + isNull + ")", nil
		}
		return clause, nil
	case constraint.OpEq:
		if table.IsNull(cond.Value()) {
			return expr + " IS NULL", nil
		}
		return expr + " = " + c.bind(cond.Value()), nil
	default:
		return expr + " " + string(cond.Op()) + " " + c.bind(cond.Value()), nil
	}
}
