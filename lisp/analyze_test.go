// Copyright © 2018 The ELPS authors

package lisp_test

import (
	"context"
	"strings"
	"testing"

	"github.com/luthersystems/schemex/lisp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analyzeTest struct {
	source string
	// result is the expansion of the last form, or an error condition when
	// it ends in !
	result string
}

func runAnalyzeTests(t *testing.T, tests []analyzeTest, config ...lisp.Config) {
	t.Helper()
	for i, test := range tests {
		env := testEnv(t, config...)
		nodes, err := env.LoadString(context.Background(), "test", test.source)
		if cond, ok := strings.CutSuffix(test.result, "!"); ok {
			if !assert.Error(t, err, "test %d: %s", i, test.source) {
				continue
			}
			var lerr *lisp.EvalError
			if assert.ErrorAs(t, err, &lerr, "test %d: %s", i, test.source) {
				assert.Equal(t, cond, lerr.Condition(), "test %d: %s: %v", i, test.source, err)
			}
			continue
		}
		if !assert.NoError(t, err, "test %d: %s", i, test.source) {
			continue
		}
		if assert.NotEmpty(t, nodes, "test %d", i) {
			assert.Equal(t, test.result, nodes[len(nodes)-1].Form.String(), "test %d: %s", i, test.source)
		}
	}
}

func TestAnalyzeCore(t *testing.T) {
	runAnalyzeTests(t, []analyzeTest{
		{`1`, `1`},
		{`"s"`, `"s"`},
		{`()`, `()`},
		{`#(1 2)`, `#(1 2)`},
		{`'(a . b)`, `'(a . b)`},
		{`(quote x y)`, `argument-error!`},
		{`(if #t 1 2)`, `(if #t 1 2)`},
		{`(if #t 1)`, `(if #t 1)`},
		{`(if)`, `argument-error!`},
		{`(if 1 2 3 4)`, `argument-error!`},
		{`(define x 1) x`, `x`},
		{`(define x) x`, `x`},
		{`(define x 1 2)`, `malformed-definition!`},
		{`(define)`, `malformed-definition!`},
		{`(define "x" 1)`, `malformed-definition!`},
		{`(define (f x) x)`, `(define f (lambda (x) x))`},
		{`(define (f . xs) xs)`, `(define f (lambda xs xs))`},
		{`(define (f a . xs) xs)`, `(define f (lambda (a . xs) xs))`},
		{`(define ((curried a) b) a)`, `(define curried (lambda (a) (lambda (b) a)))`},
		{`(define (f) (g)) (define (g) (f))`, `(define g (lambda () (f)))`},
		{`(define x 1) (set! x 2)`, `(set! x 2)`},
		{`(set! 1 2)`, `malformed-special-form!`},
		{`(set! y 2)`, `unbound-variable!`},
		{`(lambda (a b) (if a b))`, `(lambda (a b) (if a b))`},
		{`(lambda args args)`, `(lambda args args)`},
		{`(lambda (1) 1)`, `illegal-formal-parameter!`},
		{`(lambda (a . 1) 1)`, `illegal-formal-rest-parameter!`},
		{`(lambda 5 1)`, `illegal-formal-parameter!`},
		{`(lambda (a a) 1)`, `duplicate-binding!`},
		{`(lambda (a))`, `argument-error!`},
		{`(lambda)`, `argument-error!`},
		{`(lambda () (define a 1) (begin (define b a)) b)`, `(lambda () (define a 1) (define b a) b)`},
		{`(lambda () 1 (define a 1))`, `define-in-local-env!`},
		{`(lambda () (define a b) (define b 1) a)`, `variable-not-yet-initialized!`},
		{`(lambda () (define (f) b) (define b 1) f)`, `(lambda () (define f (lambda () b)) (define b 1) f)`},
		{`(lambda () (define a 1) (define a 2) a)`, `duplicate-binding!`},
		{`(lambda () (define-syntax m (syntax-rules ())) 1)`, `define-syntax-in-local-env!`},
		{`(lambda () undefined-thing)`, `(lambda () undefined-thing)`},
		{`undefined-thing`, `unbound-variable!`},
		{`(undefined-thing)`, `unbound-variable!`},
		{`if`, `illegal-keyword-usage!`},
		{`(list if)`, `unbound-variable!`},
		{`(lambda () (if))`, `argument-error!`},
		{`(else 1)`, `illegal-keyword-usage!`},
		{`(syntax-rules ())`, `illegal-keyword-usage!`},
		{`(1 2)`, `non-applicative-value!`},
		{`("f")`, `non-applicative-value!`},
		{`(() 1)`, `non-applicative-value!`},
		{`(define f 1) (f . 1)`, `malformed-argument-list!`},
		{`(if 1 . 2)`, `malformed-argument-list!`},
		{`(define f 1) ((lambda (x) x) f)`, `((lambda (x) x) f)`},
		{`(begin)`, `(begin)`},
		{`(begin (define y 1)) y`, `y`},
		{`(and)`, `(and)`},
		{`(or #f 1)`, `(or #f 1)`},
		{`(when #t 1 2)`, `(when #t 1 2)`},
		{`(unless)`, `argument-error!`},
		{`(delay 1)`, `(delay 1)`},
		{`(delay)`, `argument-error!`},
		{`(lambda () (delay undefined-thing))`, `(lambda () (delay undefined-thing))`},
	})
}

func TestAnalyzeBindingForms(t *testing.T) {
	runAnalyzeTests(t, []analyzeTest{
		{`(let ((x 1) (y 2)) x)`, `(let ((x 1) (y 2)) x)`},
		{`(let () 1)`, `(let () 1)`},
		{`(let ((x 1) (x 2)) x)`, `duplicate-binding!`},
		{`(let ((x)) x)`, `malformed-binding!`},
		{`(let ((1 2)) 1)`, `malformed-binding!`},
		{`(let 5 x)`, `malformed-bindings!`},
		{`(let x)`, `argument-error!`},
		{`(let ((x 1)) (define y x) y)`, `(let ((x 1)) (define y x) y)`},
		{`(let ((x y)) 1)`, `unbound-variable!`},
		{`(let loop ((i 0)) (loop i))`, `(let loop ((i 0)) (loop i))`},
		{`(let loop ((i loop)) i)`, `unbound-variable!`},
		{`(let loop)`, `argument-error!`},
		{`(let* ((a 1) (b a)) b)`, `(let* ((a 1) (b a)) b)`},
		{`(let* ((a 1) (a a)) a)`, `(let* ((a 1) (a a)) a)`},
		{`(let* () 1)`, `(let* () 1)`},
		{`(letrec ((even? (lambda (n) (odd? n))) (odd? (lambda (n) (even? n)))) (even? 1))`,
			`(letrec ((even? (lambda (n) (odd? n))) (odd? (lambda (n) (even? n)))) (even? 1))`},
		{`(letrec ((a b) (b 1)) a)`, `variable-not-yet-initialized!`},
		{`(letrec ((a 1) (b a)) a)`, `variable-not-yet-initialized!`},
		{`(letrec* ((a 1) (b a)) b)`, `(letrec* ((a 1) (b a)) b)`},
		{`(letrec* ((a b) (b 1)) b)`, `variable-not-yet-initialized!`},
		{`(do ((i 0 i)) ((if #t #t #f) i) i)`, `(do ((i 0 i)) ((if #t #t #f) i) i)`},
		{`(do ((i 0)) (#t) i)`, `(do ((i 0 i)) (#t) i)`},
		{`(do ((i 0)) #t)`, `malformed-test!`},
		{`(do ((i)) (#t))`, `malformed-binding!`},
		{`(do 1 (#t))`, `malformed-bindings!`},
		{`(do ((i 0) (i 1)) (#t))`, `duplicate-binding!`},
		{`(cond (#f 1) (else 2))`, `(cond (#f 1) (else 2))`},
		{`(cond (1 => (lambda (x) x)))`, `(cond (1 => (lambda (x) x)))`},
		{`(cond (1))`, `(cond (1))`},
		{`(cond)`, `(cond)`},
		{`(cond (else 1) (#f 2))`, `malformed-cond-clause!`},
		{`(cond (else))`, `malformed-cond-clause!`},
		{`(cond 1)`, `malformed-cond-clause!`},
		{`(cond (1 => 2 3))`, `malformed-cond-clause!`},
		{`(let ((else #f)) (cond (else 1)))`, `(let ((else #f)) (cond (else 1)))`},
		{`(case 1 ((1 2) 'a) (else 'b))`, `(case 1 ((1 2) 'a) (else 'b))`},
		{`(case 1 ((1) => (lambda (x) x)))`, `(case 1 ((1) => (lambda (x) x)))`},
		{`(case 1 (1 'a))`, `malformed-case-clause!`},
		{`(case 1 (else 1) ((1) 2))`, `malformed-case-clause!`},
		{`(case 1 ((1)))`, `malformed-case-clause!`},
		{`(case)`, `argument-error!`},
		{`(case-lambda ((a) a) ((a b) b))`, `(case-lambda ((a) a) ((a b) b))`},
		{`(case-lambda (a a))`, `(case-lambda (a a))`},
		{`(case-lambda 1)`, `malformed-case-lambda!`},
		{`(case-lambda ((a a) a))`, `duplicate-binding!`},
	})
}

func TestAnalyzeQuasiquote(t *testing.T) {
	runAnalyzeTests(t, []analyzeTest{
		{"`x", "`x"},
		{"`(1 ,(if #t 2 3) ,@'(4))", "`(1 ,(if #t 2 3) ,@'(4))"},
		{"(define x 1) `(1 . ,x)", "`(1 unquote x)"},
		{"`#(1 ,(if #t 2 3))", "`#(1 ,(if #t 2 3))"},
		{"`(1 `(2 ,(3 ,(if #t 4 5))))", "`(1 `(2 ,(3 ,(if #t 4 5))))"},
		{"`(1 `(2 ,(3 ,undefined-thing)))", "unbound-variable!"},
		{"`(1 `(2 ,(undefined-thing)))", "`(1 `(2 ,(undefined-thing)))"},
		{"`,@'(1)", "invalid-context-in-quasiquote!"},
		{"`(1 . ,@'(2))", "invalid-context-in-quasiquote!"},
		{"`(1 ,undefined-thing)", "unbound-variable!"},
		{"`(1 (unquote 1 2))", "argument-error!"},
		{"(quasiquote)", "argument-error!"},
	})
}

func TestAnalyzeCondExpand(t *testing.T) {
	runAnalyzeTests(t, []analyzeTest{
		{`(cond-expand (r7rs 1) (else 2))`, `(begin 1)`},
		{`(cond-expand ((not r7rs) 1) (else 2))`, `(begin 2)`},
		{`(cond-expand ((and r7rs schemex) 1))`, `(begin 1)`},
		{`(cond-expand ((or nope r7rs) 1))`, `(begin 1)`},
		{`(cond-expand ((library (lispkit core)) 1))`, `(begin 1)`},
		{`(cond-expand ((library (no such)) 1) (else 2))`, `(begin 2)`},
		{`(cond-expand (nope 1))`, `(begin)`},
		{`(cond-expand (r7rs (define z 1))) z`, `z`},
		{`(cond-expand (5 1))`, `malformed-cond-expand-clause!`},
		{`(cond-expand ((foo bar) 1))`, `malformed-cond-expand-clause!`},
		{`(cond-expand ((not) 1))`, `malformed-cond-expand-clause!`},
		{`(cond-expand (else 1) (r7rs 2))`, `malformed-cond-expand-clause!`},
		{`(cond-expand 1)`, `malformed-cond-expand-clause!`},
		{`(lambda () (cond-expand (r7rs (define z 1))) z)`, `define-in-local-env!`},
	})
	runAnalyzeTests(t, []analyzeTest{
		{`(cond-expand (r7rs 1) (else 2))`, `(begin 2)`},
		{`(cond-expand (custom 1) (else 2))`, `(begin 1)`},
	}, lisp.WithFeatures("custom"))
}

func TestAnalyzeNodes(t *testing.T) {
	env := testEnv(t)
	node := last(t, env, `(define (f a b) (if a b 1))`)
	assert.Equal(t, lisp.NodeSpecial, node.Kind)
	assert.Equal(t, lisp.SpecDefine, node.Special)
	assert.Same(t, env.Get(lisp.Symbol("f")), node.Binding)
	assert.True(t, node.Binding.Initialized)
	require.Len(t, node.Children, 1)
	lambda := node.Children[0]
	assert.Equal(t, lisp.SpecLambda, lambda.Special)
	require.Len(t, lambda.Bindings, 2)
	require.Len(t, lambda.Children, 1)
	cond := lambda.Children[0]
	assert.Equal(t, lisp.SpecIf, cond.Special)
	require.Len(t, cond.Children, 3)
	assert.Equal(t, lisp.NodeVariable, cond.Children[0].Kind)
	assert.Same(t, lambda.Bindings[0], cond.Children[0].Binding)
	assert.Same(t, lambda.Bindings[1], cond.Children[1].Binding)
	assert.Equal(t, lisp.NodeLiteral, cond.Children[2].Kind)
	assert.Equal(t, "1", cond.Children[2].Value.String())
	assert.Equal(t, "test:1:17", cond.Source.String())

	// the two x variables are distinct bindings
	node = last(t, env, `(let ((x 1)) (let ((x x)) x))`)
	outer := node.Bindings[0]
	inner := node.Children[1]
	require.Equal(t, lisp.SpecLet, inner.Special)
	assert.NotSame(t, outer, inner.Bindings[0])
	assert.Same(t, outer, inner.Children[0].Binding)
	assert.Same(t, inner.Bindings[0], inner.Children[1].Binding)

	node = last(t, env, `(f 1 2)`)
	assert.Equal(t, lisp.NodeApplication, node.Kind)
	require.Len(t, node.Children, 3)
	assert.Same(t, env.Get(lisp.Symbol("f")), node.Children[0].Binding)

	node = last(t, env, `'(a b)`)
	assert.Equal(t, lisp.NodeLiteral, node.Kind)
	assert.Equal(t, lisp.SpecQuote, node.Special)
	assert.Equal(t, "(a b)", node.Value.String())

	node = last(t, env, `(case 1 ((1 2) 'a) (else 'b))`)
	require.Len(t, node.Children, 3)
	assert.Equal(t, "(1 2)", node.Children[1].Value.String())
	assert.Nil(t, node.Children[2].Value)

	var kinds []lisp.NodeKind
	node = last(t, env, `(f (f 1 2) 3)`)
	node.Walk(func(n *lisp.Node) bool {
		kinds = append(kinds, n.Kind)
		return true
	})
	assert.Equal(t, []lisp.NodeKind{
		lisp.NodeApplication, lisp.NodeVariable,
		lisp.NodeApplication, lisp.NodeVariable, lisp.NodeLiteral, lisp.NodeLiteral,
		lisp.NodeLiteral,
	}, kinds)
}

func TestAnalyzeErrorMessages(t *testing.T) {
	env := testEnv(t)
	_, err := load(t, env, `(let ((x 1) (x 2)) x)`)
	lerr := requireCondition(t, err, lisp.CondDuplicateBinding)
	assert.Equal(t, "symbol x bound multiple times in ((x 1) (x 2))", lerr.Message())
	assert.Equal(t, "test:1:14", lerr.Source.String())

	_, err = load(t, env, `(lambda () (import (foo)))`)
	lerr = requireCondition(t, err, lisp.CondImportInLocalEnv)
	assert.Equal(t, "import of (foo) in local environment", lerr.Message())

	_, err = load(t, env, "\n  (if)")
	assert.EqualError(t, err, "test:2:4: argument-error: wrong number of arguments for if: (if)")

	_, err = load(t, env, `(lambda () 1 (define a 1))`)
	lerr = requireCondition(t, err, lisp.CondDefineInLocalEnv)
	assert.Equal(t, "definition of a in local environment", lerr.Message())

	_, err = load(t, env, `(set! 1 2)`)
	lerr = requireCondition(t, err, lisp.CondMalformedSpecialForm)
	assert.Equal(t, "malformed set! form: (set! 1 2)", lerr.Message())

	_, err = load(t, env, `(let ((x)) x)`)
	lerr = requireCondition(t, err, lisp.CondMalformedBinding)
	assert.Equal(t, "malformed binding (x) in ((x))", lerr.Message())
}

func TestAnalyzeFailedDefinition(t *testing.T) {
	env := testEnv(t)
	_, err := load(t, env, `(define a 1) (define b undefined-thing)`)
	requireCondition(t, err, lisp.CondUnboundVariable)
	assert.NotNil(t, env.Get(lisp.Symbol("a")), "completed definitions persist")
	assert.Nil(t, env.Get(lisp.Symbol("b")), "the failed definition is removed")

	// redefining an existing variable keeps it when the new value fails
	_, err = load(t, env, `(define a undefined-thing)`)
	requireCondition(t, err, lisp.CondUnboundVariable)
	assert.NotNil(t, env.Get(lisp.Symbol("a")))

	// a macro survives a failed redefinition as a variable
	_, err = load(t, env, `(define-syntax m (syntax-rules () ((_) 1)))`)
	require.NoError(t, err)
	_, err = load(t, env, `(define m undefined-thing)`)
	requireCondition(t, err, lisp.CondUnboundVariable)
	b := env.Get(lisp.Symbol("m"))
	require.NotNil(t, b)
	assert.Equal(t, lisp.DenMacro, b.Kind)
	assert.NotNil(t, b.Macro)
	n := last(t, env, `(m)`)
	assert.Equal(t, "1", n.Form.String())

	_, err = load(t, env, `(define if 1)`)
	requireCondition(t, err, lisp.CondErroneousRedefinition)
	assert.Equal(t, lisp.DenSpecialForm, env.Get(lisp.Symbol("if")).Kind)
}

func TestCheck(t *testing.T) {
	env := testEnv(t)
	exprs, err := env.Runtime.Reader.Read("test", strings.NewReader(`
(define (f) (g))
(if)
(define (h) (undefined-thing))
(define (k) if)
(define (g) 1)
`))
	require.NoError(t, err)
	nodes, errs := env.Check(context.Background(), exprs)
	assert.Len(t, nodes, 3)
	require.Len(t, errs, 3)
	requireCondition(t, errs[0], lisp.CondArgumentError)
	requireCondition(t, errs[1], lisp.CondIllegalKeywordUsage)
	requireCondition(t, errs[2], lisp.CondUnboundVariable)
	assert.Contains(t, errs[2].Error(), "undefined-thing")
	assert.Empty(t, env.Unit.Pending())

	// resolved forward references are patched
	var ref *lisp.Node
	nodes[0].Walk(func(n *lisp.Node) bool {
		if n.Kind == lisp.NodeVariable && n.Form.IsSymbol("g") {
			ref = n
		}
		return true
	})
	require.NotNil(t, ref)
	assert.Same(t, env.Get(lisp.Symbol("g")), ref.Binding)
}

func TestForwardReferences(t *testing.T) {
	env := testEnv(t)
	_, err := load(t, env, `(define (f) (g x))`)
	require.NoError(t, err)
	pending := env.Unit.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "g", pending[0].String())
	assert.Equal(t, "x", pending[1].String())
	_, err = load(t, env, `(define (g y) y) (define x 1)`)
	require.NoError(t, err)
	assert.Empty(t, env.Finish())
	assert.Empty(t, env.Unit.Pending())
}
