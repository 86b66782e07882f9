package lang

// Program is a parsed sequence of top-level statements.
type Program struct {
	Stmts []Stmt
}

// Stmt is a single statement.
type Stmt interface {
	StmtSpan() Span
}

// Expr is a value-producing expression.
type Expr interface {
	ExprSpan() Span
}

// ---- Statements ----

// AssignStmt is `NAME = value` or `local NAME = value`.
type AssignStmt struct {
	Name  string
	Value Expr
	Local bool
	Span  Span
}

// CommandStmt is a simple command: name, arguments and redirects.
type CommandStmt struct {
	Name      string
	Args      []Arg
	Redirects []Redirect
	Span      Span
}

// PipelineStmt is `a | b | c [&]`.
type PipelineStmt struct {
	Cmds       []*CommandStmt
	Background bool
	Span       Span
}

// ElifClause is one `elif cond; then body` arm.
type ElifClause struct {
	Cond Stmt
	Body []Stmt
}

// IfStmt is `if cond; then ...; [elif ...;] [else ...;] fi`.
type IfStmt struct {
	Cond  Stmt
	Then  []Stmt
	Elifs []ElifClause
	Else  []Stmt
	Span  Span
}

// ForStmt is `for VAR in VALUE; do body; done`.
type ForStmt struct {
	Var    string
	Source Expr
	Body   []Stmt
	Span   Span
}

// WhileStmt is `while cond; do body; done`.
type WhileStmt struct {
	Cond Stmt
	Body []Stmt
	Span Span
}

// BreakStmt unwinds Level loops (1 when unspecified).
type BreakStmt struct {
	Level int
	Span  Span
}

// ContinueStmt continues the Level-th enclosing loop.
type ContinueStmt struct {
	Level int
	Span  Span
}

// ReturnStmt exits the current tool body. Code may be nil.
type ReturnStmt struct {
	Code Expr
	Span Span
}

// ExitStmt terminates the current top-level execution. Code may be nil.
type ExitStmt struct {
	Code Expr
	Span Span
}

// ParamType is a declared tool parameter type.
type ParamType int

const (
	ParamString ParamType = iota
	ParamInt
	ParamFloat
	ParamBool
	ParamArray
	ParamObject
)

func (t ParamType) String() string {
	switch t {
	case ParamString:
		return "string"
	case ParamInt:
		return "int"
	case ParamFloat:
		return "float"
	case ParamBool:
		return "bool"
	case ParamArray:
		return "array"
	case ParamObject:
		return "object"
	}
	return "unknown"
}

// ParamDef declares one tool parameter.
type ParamDef struct {
	Name    string
	Type    ParamType
	Default Expr // nil when required
}

// ToolDefStmt is `tool NAME(params) { body }`.
type ToolDefStmt struct {
	Name   string
	Params []ParamDef
	Body   []Stmt
	Source string // verbatim body text, retained for re-export
	Span   Span
}

// SourceStmt is `source PATH` or `. PATH`.
type SourceStmt struct {
	Path Expr
	Span Span
}

// ChainOp is a logical chain operator.
type ChainOp int

const (
	ChainAnd ChainOp = iota // &&
	ChainOr                 // ||
)

// ChainStmt is `left && right` or `left || right`.
type ChainStmt struct {
	Left  Stmt
	Op    ChainOp
	Right Stmt
	Span  Span
}

// TestStmt is a `[[ left OP right ]]` test expression, or `[[ value ]]`
// when Op is empty.
type TestStmt struct {
	Left  Expr
	Op    string // "==", "!=", "=~", "!~", "-eq", "-ne", "-lt", "-gt", "-le", "-ge"
	Right Expr
	Span  Span
}

// ExprStmt is a bare expression used in condition position.
type ExprStmt struct {
	E    Expr
	Span Span
}

// SetStmt is `set -e` / `set +e`.
type SetStmt struct {
	Option string // "e"
	Enable bool
	Span   Span
}

func (s *AssignStmt) StmtSpan() Span   { return s.Span }
func (s *CommandStmt) StmtSpan() Span  { return s.Span }
func (s *PipelineStmt) StmtSpan() Span { return s.Span }
func (s *IfStmt) StmtSpan() Span       { return s.Span }
func (s *ForStmt) StmtSpan() Span      { return s.Span }
func (s *WhileStmt) StmtSpan() Span    { return s.Span }
func (s *BreakStmt) StmtSpan() Span    { return s.Span }
func (s *ContinueStmt) StmtSpan() Span { return s.Span }
func (s *ReturnStmt) StmtSpan() Span   { return s.Span }
func (s *ExitStmt) StmtSpan() Span     { return s.Span }
func (s *ToolDefStmt) StmtSpan() Span  { return s.Span }
func (s *SourceStmt) StmtSpan() Span   { return s.Span }
func (s *ChainStmt) StmtSpan() Span    { return s.Span }
func (s *TestStmt) StmtSpan() Span     { return s.Span }
func (s *ExprStmt) StmtSpan() Span     { return s.Span }
func (s *SetStmt) StmtSpan() Span      { return s.Span }

// ---- Arguments and redirects ----

// ArgKind distinguishes the argument forms.
type ArgKind int

const (
	ArgPositional ArgKind = iota
	ArgNamed
	ArgFlag
)

// Arg is an argument to a simple command.
type Arg struct {
	Kind  ArgKind
	Key   string // ArgNamed: key; ArgFlag: flag name without dashes
	Value Expr   // nil for bare flags
	Short bool   // ArgFlag: single-dash form
	Span  Span
}

// RedirOp is a redirection operator.
type RedirOp int

const (
	RedirStdout RedirOp = iota // >
	RedirAppend                // >>
	RedirStdin                 // <
	RedirStderr                // 2>
	RedirBoth                  // &>
)

func (r RedirOp) String() string {
	switch r {
	case RedirStdout:
		return ">"
	case RedirAppend:
		return ">>"
	case RedirStdin:
		return "<"
	case RedirStderr:
		return "2>"
	case RedirBoth:
		return "&>"
	}
	return "?"
}

// Redirect routes a stage's stream to or from a VFS path.
type Redirect struct {
	Op     RedirOp
	Target Expr
	Span   Span
}

// ---- Expressions ----

// NullLit is the literal `null`.
type NullLit struct{ Span Span }

// BoolLit is `true` or `false`.
type BoolLit struct {
	V    bool
	Span Span
}

// IntLit is a 64-bit signed integer literal.
type IntLit struct {
	V    int64
	Span Span
}

// FloatLit is a 64-bit float literal.
type FloatLit struct {
	V    float64
	Span Span
}

// StringLit is a literal string with no interpolation.
type StringLit struct {
	V    string
	Span Span
}

// ArrayLit is `[a, b, c]`.
type ArrayLit struct {
	Items []Expr
	Span  Span
}

// ObjectLit is `{"k": v, ...}` with key order preserved.
type ObjectLit struct {
	Keys []string
	Vals []Expr
	Span Span
}

// SegKind distinguishes variable path segments.
type SegKind int

const (
	SegField SegKind = iota
	SegIndex
)

// Seg is one segment of a variable path.
type Seg struct {
	Kind  SegKind
	Field string
	Index int
}

// VarRef is `$NAME`, `${path}`, `${V:-default}` or `${#V}`.
type VarRef struct {
	Path    []Seg
	Default Expr // ${V:-default}; nil otherwise
	Length  bool // ${#V}
	Span    Span
}

// Name returns the root variable name of the reference.
func (v *VarRef) Name() string {
	if len(v.Path) == 0 {
		return ""
	}
	return v.Path[0].Field
}

func (v *VarRef) ExprSpan() Span { return v.Span }

// StrPart is one chunk of an interpolated string: either literal text or a
// variable reference.
type StrPart struct {
	Text string
	Ref  *VarRef // nil for literal chunks
}

// InterpString is a double-quoted string containing references.
type InterpString struct {
	Parts []*StrPart
	Span  Span
}

// CmdSubst is `$(pipeline)`; evaluated lazily by the interpreter.
type CmdSubst struct {
	Pipe *PipelineStmt
	Span Span
}

func (e *NullLit) ExprSpan() Span      { return e.Span }
func (e *BoolLit) ExprSpan() Span      { return e.Span }
func (e *IntLit) ExprSpan() Span       { return e.Span }
func (e *FloatLit) ExprSpan() Span     { return e.Span }
func (e *StringLit) ExprSpan() Span    { return e.Span }
func (e *ArrayLit) ExprSpan() Span     { return e.Span }
func (e *ObjectLit) ExprSpan() Span    { return e.Span }
func (e *InterpString) ExprSpan() Span { return e.Span }
func (e *CmdSubst) ExprSpan() Span     { return e.Span }
